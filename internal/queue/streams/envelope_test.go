package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidateBasic(t *testing.T) {
	env := Envelope{
		EventID:        "evt-1",
		EventType:      EventCourseGenerateRequested,
		PayloadVersion: PayloadVersionV1,
		Data:           json.RawMessage(`{"run_id":"r1"}`),
	}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be defaulted")
	}
}

func TestEnvelopeValidateBasicRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing event id", Envelope{EventType: "x", PayloadVersion: "v1", Data: json.RawMessage(`{}`)}},
		{"missing event type", Envelope{EventID: "e", PayloadVersion: "v1", Data: json.RawMessage(`{}`)}},
		{"missing payload version", Envelope{EventID: "e", EventType: "x", Data: json.RawMessage(`{}`)}},
		{"missing data", Envelope{EventID: "e", EventType: "x", PayloadVersion: "v1"}},
		{"negative attempt", Envelope{EventID: "e", EventType: "x", PayloadVersion: "v1", Attempt: -1, Data: json.RawMessage(`{}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := tc.env
			if err := env.ValidateBasic(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestUnmarshalEnvelopeRoundTrip(t *testing.T) {
	payload, _ := json.Marshal(GenerateRequestedPayload{RunID: "run-1", EmployeeID: "emp-1", IncludeMedia: true})
	env := Envelope{
		EventID:        "evt-1",
		EventType:      EventCourseGenerateRequested,
		OccurredAt:     time.Now().UTC(),
		PayloadVersion: PayloadVersionV1,
		Data:           payload,
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if decoded.EventType != EventCourseGenerateRequested {
		t.Fatalf("unexpected event type %q", decoded.EventType)
	}
	var got GenerateRequestedPayload
	if err := json.Unmarshal(decoded.Data, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.RunID != "run-1" || got.EmployeeID != "emp-1" || !got.IncludeMedia {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := UnmarshalEnvelope([]byte(`{"event_type":"x"}`)); err == nil {
		t.Fatal("expected validation error")
	}
}
