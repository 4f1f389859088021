package worker_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/queue/streams"
	"github.com/skillsmith/coursegen/internal/store"
	"github.com/skillsmith/coursegen/internal/worker"
)

type fakeGenerator struct {
	planID string
	calls  int
}

func (g *fakeGenerator) GenerateCourse(ctx context.Context, req core.GenerationRequest) (core.GenerationResult, error) {
	g.calls++
	return core.GenerationResult{
		RunID:            req.RunID,
		PlanID:           g.planID,
		Status:           core.RunStatusCompleted,
		ModulesCompleted: 3,
	}, nil
}

func TestProcessorEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("coursegen"),
		tcPostgres.WithUsername("coursegen"),
		tcPostgres.WithPassword("coursegen"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	pgHost, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	pgPort, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	redisHost, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	redisPort, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://coursegen:coursegen@%s:%s/coursegen?sslmode=disable", pgHost, pgPort.Port())
	if err := applyQueueSchema(ctx, dsn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	defer func() { _ = redisClient.Close() }()

	const stream = "coursegen.runs"
	if err := streams.EnsureGroup(ctx, redisClient, stream, "test-group"); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	publisher := streams.NewPublisher(redisClient)
	consumer := streams.NewConsumer(redisClient, "test-group", "consumer-1")

	gen := &fakeGenerator{planID: uuid.NewString()}
	proc := worker.NewProcessor(log.New(io.Discard, "", 0), st, gen, publisher, consumer, stream)

	runID := uuid.NewString()
	if _, err := publisher.PublishRaw(ctx, stream, streams.EventCourseGenerateRequested, streams.PayloadVersionV1, streams.GenerateRequestedPayload{
		RunID:      runID,
		EmployeeID: uuid.NewString(),
	}); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	procCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- proc.Start(procCtx)
	}()

	awaitCheckpointStatus(t, ctx, st, runID, store.CheckpointStatusCompleted, 15*time.Second)

	cancel()
	if err := <-done; err != nil && !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("processor exit: %v", err)
	}

	if gen.calls != 1 {
		t.Fatalf("expected one generation, got %d", gen.calls)
	}

	// the completed event lands on the same stream as the request
	msgs, err := redisClient.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	var sawCompleted bool
	for _, msg := range msgs {
		if raw, ok := msg.Values["envelope"].(string); ok && strings.Contains(raw, streams.EventCourseGenerateCompleted) {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Fatalf("expected a %s event on the stream", streams.EventCourseGenerateCompleted)
	}

	// a replay of the same event must be dropped by the idempotency claim
	claimed, err := st.ClaimIdempotency(ctx, streams.EventCourseGenerateRequested, firstEventID(t, msgs))
	if err != nil {
		t.Fatalf("claim idempotency: %v", err)
	}
	if claimed {
		t.Fatal("expected event id to already be claimed")
	}
}

func firstEventID(t *testing.T, msgs []redis.XMessage) string {
	t.Helper()
	for _, msg := range msgs {
		raw, ok := msg.Values["envelope"].(string)
		if !ok {
			continue
		}
		env, err := streams.UnmarshalEnvelope([]byte(raw))
		if err != nil {
			continue
		}
		if env.EventType == streams.EventCourseGenerateRequested {
			return env.EventID
		}
	}
	t.Fatal("no requested event found on stream")
	return ""
}

func applyQueueSchema(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS run_checkpoints (
    run_id     UUID NOT NULL,
    stage      TEXT NOT NULL,
    status     TEXT NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
    retries    INT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (run_id, stage)
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    scope      TEXT NOT NULL,
    key        TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (scope, key)
);
`)
	return err
}

func awaitCheckpointStatus(t *testing.T, ctx context.Context, st *store.Store, runID, status string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		cp, ok, err := st.GetCheckpoint(ctx, runID, "course.generate")
		if err != nil {
			t.Fatalf("get checkpoint: %v", err)
		}
		if ok && cp.Status == status {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("checkpoint for run %s did not reach %s within %s", runID, status, timeout)
}
