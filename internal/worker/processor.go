package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/queue/streams"
	"github.com/skillsmith/coursegen/internal/store"
)

const stageGenerate = "course.generate"

// StoreAPI captures the store methods required by the worker.
type StoreAPI interface {
	ClaimIdempotency(ctx context.Context, scope, key string) (bool, error)
	UpsertCheckpoint(ctx context.Context, cp store.Checkpoint) error
	GetCheckpoint(ctx context.Context, runID, stage string) (store.Checkpoint, bool, error)
	MarkCheckpointStatus(ctx context.Context, runID, stage, status string) error
}

// Generator runs the course pipeline for one request.
type Generator interface {
	GenerateCourse(ctx context.Context, req core.GenerationRequest) (core.GenerationResult, error)
}

// Processor consumes course.generate.requested events, drives the pipeline
// and publishes the outcome, checkpointing progress along the way.
type Processor struct {
	logger    *log.Logger
	store     StoreAPI
	generator Generator
	consumer  *streams.Consumer
	publisher *streams.Publisher
	stream    string
	tracer    trace.Tracer
}

// NewProcessor constructs a Processor.
func NewProcessor(logger *log.Logger, st StoreAPI, gen Generator, pub *streams.Publisher, cons *streams.Consumer, stream string) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Processor{
		logger:    logger,
		store:     st,
		generator: gen,
		consumer:  cons,
		publisher: pub,
		stream:    stream,
		tracer:    otel.Tracer("coursegen/worker"),
	}
}

// Start blocks, continuously processing generation requests until the
// context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker starting; consuming stream %s", p.stream)

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		for _, msg := range msgs {
			if err := p.handleMessage(ctx, msg); err != nil {
				p.logger.Printf("error handling message %s: %v", msg.ID, err)
			}
			if err := p.consumer.Ack(ctx, p.stream, msg.ID); err != nil {
				p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
			}
		}
	}
}

func (p *Processor) handleMessage(ctx context.Context, msg streams.Message) error {
	if msg.Envelope.EventType != streams.EventCourseGenerateRequested {
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "worker.handle_generate",
		trace.WithAttributes(attribute.String("event.id", msg.Envelope.EventID)))
	defer span.End()

	claimed, err := p.store.ClaimIdempotency(ctx, msg.Envelope.EventType, msg.Envelope.EventID)
	if err != nil {
		return fmt.Errorf("claim idempotency: %w", err)
	}
	if !claimed {
		p.logger.Printf("skip event %s: already processed", msg.Envelope.EventID)
		return nil
	}

	var payload streams.GenerateRequestedPayload
	if err := json.Unmarshal(msg.Envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.RunID == "" || payload.EmployeeID == "" {
		return fmt.Errorf("payload missing run_id or employee_id")
	}

	if err := p.store.UpsertCheckpoint(ctx, store.Checkpoint{
		RunID:  payload.RunID,
		Stage:  stageGenerate,
		Status: store.CheckpointStatusReceived,
		Payload: map[string]interface{}{
			"employee_id": payload.EmployeeID,
			"event_id":    msg.Envelope.EventID,
		},
	}); err != nil {
		return fmt.Errorf("checkpoint received: %w", err)
	}

	if err := p.store.MarkCheckpointStatus(ctx, payload.RunID, stageGenerate, store.CheckpointStatusDispatched); err != nil {
		return fmt.Errorf("checkpoint dispatched: %w", err)
	}

	result, genErr := p.generator.GenerateCourse(ctx, core.GenerationRequest{
		RunID:        payload.RunID,
		EmployeeID:   payload.EmployeeID,
		FocusSkill:   payload.FocusSkill,
		IncludeMedia: payload.IncludeMedia,
	})

	finished := streams.GenerateFinishedPayload{
		RunID:  payload.RunID,
		PlanID: result.PlanID,
		Status: result.Status,
	}
	eventType := streams.EventCourseGenerateCompleted
	checkpointStatus := store.CheckpointStatusCompleted
	if genErr != nil {
		finished.Status = core.RunStatusFailed
		finished.Error = genErr.Error()
		eventType = streams.EventCourseGenerateFailed
		checkpointStatus = store.CheckpointStatusFailed
	}

	if err := p.store.MarkCheckpointStatus(ctx, payload.RunID, stageGenerate, checkpointStatus); err != nil {
		p.logger.Printf("warn: checkpoint %s for run %s: %v", checkpointStatus, payload.RunID, err)
	}
	if _, err := p.publisher.PublishRaw(ctx, p.stream, eventType, streams.PayloadVersionV1, finished); err != nil {
		p.logger.Printf("warn: publish %s for run %s: %v", eventType, payload.RunID, err)
	}

	if genErr != nil {
		return fmt.Errorf("generate course: %w", genErr)
	}
	p.logger.Printf("run %s completed: plan=%s modules=%d", payload.RunID, result.PlanID, result.ModulesCompleted)
	return nil
}
