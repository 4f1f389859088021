package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Checkpoint statuses persisted for queue processing.
const (
	CheckpointStatusReceived   = "received"
	CheckpointStatusDispatched = "dispatched"
	CheckpointStatusCompleted  = "completed"
	CheckpointStatusFailed     = "failed"
)

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// EmployeeRecord is a stored learner profile.
type EmployeeRecord struct {
	ID         string
	Name       string
	Email      string
	Role       string
	Department string
	Profile    json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s *Store) CreateEmployee(ctx context.Context, rec EmployeeRecord) (string, error) {
	if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Email) == "" {
		return "", fmt.Errorf("employee name and email required")
	}
	profile := rec.Profile
	if len(profile) == 0 {
		profile = json.RawMessage(`{}`)
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO employees (name, email, role, department, profile)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		rec.Name, rec.Email, rec.Role, rec.Department, []byte(profile)).Scan(&id)
	return id, err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (EmployeeRecord, bool, error) {
	var rec EmployeeRecord
	var profile []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id::text, name, email, role, department, profile, created_at, updated_at
FROM employees WHERE id=$1`, id).
		Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Role, &rec.Department, &profile, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return EmployeeRecord{}, false, nil
	}
	if err != nil {
		return EmployeeRecord{}, false, err
	}
	rec.Profile = profile
	return rec, true, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]EmployeeRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, name, email, role, department, profile, created_at, updated_at
FROM employees ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EmployeeRecord
	for rows.Next() {
		var rec EmployeeRecord
		var profile []byte
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Role, &rec.Department, &profile, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Profile = profile
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEmployeeProfile(ctx context.Context, id string, profile json.RawMessage) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE employees SET profile=$2, updated_at=NOW() WHERE id=$1`, id, []byte(profile))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// SkillRecord is one entry of the skills taxonomy.
type SkillRecord struct {
	ID                string
	Name              string
	Category          string
	Description       string
	ProficiencyLevels []string
	CreatedAt         time.Time
}

func (s *Store) UpsertSkill(ctx context.Context, rec SkillRecord) (string, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return "", fmt.Errorf("skill name required")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO skills_taxonomy (name, category, description, proficiency_levels)
VALUES ($1,$2,$3,$4)
ON CONFLICT (name) DO UPDATE SET
  category           = EXCLUDED.category,
  description        = EXCLUDED.description,
  proficiency_levels = EXCLUDED.proficiency_levels
RETURNING id`,
		rec.Name, rec.Category, rec.Description, pq.Array(rec.ProficiencyLevels)).Scan(&id)
	return id, err
}

func (s *Store) ListSkills(ctx context.Context) ([]SkillRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, name, category, description, proficiency_levels, created_at
FROM skills_taxonomy ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SkillRecord
	for rows.Next() {
		var rec SkillRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Category, &rec.Description, pq.Array(&rec.ProficiencyLevels), &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
