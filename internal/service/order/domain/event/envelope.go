package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format of every saga message.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType Type            `json:"event_type"`
	OrderID   uint64          `json:"order_id"`
	EventTime time.Time       `json:"event_time"`
	Payload   json.RawMessage `json:"payload"`
}

// Event is a decoded envelope with its typed body.
type Event struct {
	Envelope
	Payload Payload
}

// DecodeError is returned for bytes that are not a valid envelope. Such
// messages are never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode event: %s: %v", e.Reason, e.Err)
	}
	return "decode event: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Seal wraps p in a fresh envelope stamped at now (UTC).
func Seal(p Payload, now time.Time) (Event, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", p.EventType(), err)
	}
	return Event{
		Envelope: Envelope{
			EventID:   uuid.NewString(),
			EventType: p.EventType(),
			OrderID:   p.AggregateID(),
			EventTime: now.UTC(),
			Payload:   body,
		},
		Payload: p,
	}, nil
}

// Marshal encodes the envelope.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e.Envelope)
}

// Decode parses an envelope and its typed body. Unknown fields in the body
// are rejected so a message for another schema is caught early.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if env.EventID == "" {
		return Event{}, &DecodeError{Reason: "missing event_id"}
	}
	p := newPayload(env.EventType)
	if p == nil {
		return Event{}, &DecodeError{Reason: fmt.Sprintf("unknown event type %q", env.EventType)}
	}
	if len(env.Payload) == 0 {
		return Event{}, &DecodeError{Reason: "missing payload"}
	}
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return Event{}, &DecodeError{Reason: fmt.Sprintf("malformed %s payload", env.EventType), Err: err}
	}
	if p.AggregateID() == 0 {
		return Event{}, &DecodeError{Reason: "payload has no order_id"}
	}
	if env.OrderID != 0 && env.OrderID != p.AggregateID() {
		return Event{}, &DecodeError{Reason: fmt.Sprintf("envelope order %d does not match payload order %d", env.OrderID, p.AggregateID())}
	}
	env.OrderID = p.AggregateID()
	return Event{Envelope: env, Payload: p}, nil
}
