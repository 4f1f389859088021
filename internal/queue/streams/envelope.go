package streams

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried on the generation stream.
const (
	EventCourseGenerateRequested = "course.generate.requested"
	EventCourseGenerateCompleted = "course.generate.completed"
	EventCourseGenerateFailed    = "course.generate.failed"

	PayloadVersionV1 = "v1"
)

// GenerateRequestedPayload is the data carried by a requested event.
type GenerateRequestedPayload struct {
	RunID        string `json:"run_id"`
	EmployeeID   string `json:"employee_id"`
	FocusSkill   string `json:"focus_skill,omitempty"`
	IncludeMedia bool   `json:"include_media"`
}

// GenerateFinishedPayload is the data carried by completed/failed events.
type GenerateFinishedPayload struct {
	RunID  string `json:"run_id"`
	PlanID string `json:"plan_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Envelope represents the canonical message wrapper persisted to Redis Streams.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	TraceID        string          `json:"trace_id,omitempty"`
	Attempt        int             `json:"attempt"`
	PayloadVersion string          `json:"payload_version"`
	Data           json.RawMessage `json:"data"`
}

// ValidateBasic ensures mandatory envelope fields are present.
func (e *Envelope) ValidateBasic() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.PayloadVersion == "" {
		return fmt.Errorf("payload_version is required")
	}
	if e.Attempt < 0 {
		return fmt.Errorf("attempt must be >= 0")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("data payload is required")
	}
	return nil
}

// Marshal returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope parses JSON bytes into an Envelope and validates required fields.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}
