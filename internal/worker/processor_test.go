package worker

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/skillsmith/coursegen/internal/queue/streams"
	"github.com/skillsmith/coursegen/internal/store"
)

type fakeStore struct {
	claim       bool
	claimErr    error
	claims      []string
	checkpoints []store.Checkpoint
	marks       []string
}

func (f *fakeStore) ClaimIdempotency(ctx context.Context, scope, key string) (bool, error) {
	f.claims = append(f.claims, scope+"/"+key)
	return f.claim, f.claimErr
}

func (f *fakeStore) UpsertCheckpoint(ctx context.Context, cp store.Checkpoint) error {
	f.checkpoints = append(f.checkpoints, cp)
	return nil
}

func (f *fakeStore) GetCheckpoint(ctx context.Context, runID, stage string) (store.Checkpoint, bool, error) {
	return store.Checkpoint{}, false, nil
}

func (f *fakeStore) MarkCheckpointStatus(ctx context.Context, runID, stage, status string) error {
	f.marks = append(f.marks, status)
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func requestedMessage(data string) streams.Message {
	return streams.Message{
		ID: "1-0",
		Envelope: streams.Envelope{
			EventID:        "evt-1",
			EventType:      streams.EventCourseGenerateRequested,
			PayloadVersion: streams.PayloadVersionV1,
			Data:           json.RawMessage(data),
		},
	}
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	fs := &fakeStore{}
	p := NewProcessor(quietLogger(), fs, nil, nil, nil, "coursegen.runs")

	msg := requestedMessage(`{}`)
	msg.Envelope.EventType = streams.EventCourseGenerateCompleted
	if err := p.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(fs.claims) != 0 {
		t.Fatalf("expected no idempotency claims, got %v", fs.claims)
	}
}

func TestHandleMessageSkipsDuplicates(t *testing.T) {
	fs := &fakeStore{claim: false}
	p := NewProcessor(quietLogger(), fs, nil, nil, nil, "coursegen.runs")

	msg := requestedMessage(`{"run_id":"run-1","employee_id":"emp-1"}`)
	if err := p.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(fs.claims) != 1 {
		t.Fatalf("expected exactly one claim, got %v", fs.claims)
	}
	if len(fs.checkpoints) != 0 {
		t.Fatalf("duplicate must not write checkpoints, got %d", len(fs.checkpoints))
	}
}

func TestHandleMessageRejectsIncompletePayload(t *testing.T) {
	fs := &fakeStore{claim: true}
	p := NewProcessor(quietLogger(), fs, nil, nil, nil, "coursegen.runs")

	err := p.handleMessage(context.Background(), requestedMessage(`{"employee_id":"emp-1"}`))
	if err == nil || !strings.Contains(err.Error(), "run_id") {
		t.Fatalf("expected payload validation error, got %v", err)
	}
	if len(fs.checkpoints) != 0 {
		t.Fatalf("invalid payload must not checkpoint, got %d", len(fs.checkpoints))
	}
}
