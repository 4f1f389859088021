package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Checkpoint captures durable progress for a run stage.
type Checkpoint struct {
	RunID     string
	Stage     string
	Status    string
	Payload   map[string]interface{}
	Retries   int
	UpdatedAt time.Time
}

// ClaimIdempotency attempts to register a processed event. It returns false if the key already exists.
func (s *Store) ClaimIdempotency(ctx context.Context, scope, key string) (bool, error) {
	if scope == "" || key == "" {
		return false, fmt.Errorf("scope and key must be provided")
	}
	var inserted bool
	err := s.DB.QueryRowContext(ctx, `INSERT INTO idempotency_keys (scope, key) VALUES ($1,$2) ON CONFLICT DO NOTHING RETURNING true`, scope, key).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// UpsertCheckpoint persists checkpoint progress for a run stage.
func (s *Store) UpsertCheckpoint(ctx context.Context, cp Checkpoint) error {
	if cp.RunID == "" || cp.Stage == "" {
		return fmt.Errorf("run_id and stage are required")
	}
	payloadBytes, err := json.Marshal(cp.Payload)
	if err != nil {
		return fmt.Errorf("marshal checkpoint payload: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO run_checkpoints (run_id, stage, status, payload, retries, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (run_id, stage) DO UPDATE SET
  status     = EXCLUDED.status,
  payload    = EXCLUDED.payload,
  retries    = EXCLUDED.retries,
  updated_at = NOW();
`, cp.RunID, cp.Stage, cp.Status, payloadBytes, cp.Retries)
	return err
}

// GetCheckpoint retrieves a checkpoint for a run/stage. The bool indicates whether a record was found.
func (s *Store) GetCheckpoint(ctx context.Context, runID, stage string) (Checkpoint, bool, error) {
	var (
		payloadBytes []byte
		cp           Checkpoint
	)
	row := s.DB.QueryRowContext(ctx, `
SELECT run_id::text, stage, status, payload, retries, updated_at
FROM run_checkpoints
WHERE run_id = $1 AND stage = $2`, runID, stage)
	if err := row.Scan(&cp.RunID, &cp.Stage, &cp.Status, &payloadBytes, &cp.Retries, &cp.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}
	if len(payloadBytes) > 0 {
		var m map[string]interface{}
		_ = json.Unmarshal(payloadBytes, &m)
		cp.Payload = m
	}
	return cp, true, nil
}

// ListCheckpointsByStatus returns checkpoints matching any of the provided statuses.
func (s *Store) ListCheckpointsByStatus(ctx context.Context, statuses ...string) ([]Checkpoint, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT run_id::text, stage, status, payload, retries, updated_at
FROM run_checkpoints
WHERE status = ANY($1)`, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Checkpoint
	for rows.Next() {
		var (
			cp           Checkpoint
			payloadBytes []byte
		)
		if err := rows.Scan(&cp.RunID, &cp.Stage, &cp.Status, &payloadBytes, &cp.Retries, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		if len(payloadBytes) > 0 {
			var m map[string]interface{}
			_ = json.Unmarshal(payloadBytes, &m)
			cp.Payload = m
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// MarkCheckpointStatus updates the checkpoint status for a run stage.
func (s *Store) MarkCheckpointStatus(ctx context.Context, runID, stage, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE run_checkpoints SET status=$3, updated_at=NOW() WHERE run_id=$1 AND stage=$2`, runID, stage, status)
	return err
}
