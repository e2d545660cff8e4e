package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the platform exchange. The routing key of every
// published message is its event type, so consumers bind by these names.
const (
	EventPaymentCreated  = "payment.created.v1"
	EventPaymentApproved = "payment.approved.v1"
	EventPaymentRejected = "payment.rejected.v1"
	EventPaymentReversed = "payment.reversed.v1"
	EventLedgerPosted    = "ledger.posted.v1"
)

// EventEnvelope is the wire format shared by every service.
type EventEnvelope struct {
	EventID       uuid.UUID         `json:"eventId"`
	EventType     string            `json:"eventType"`
	CorrelationID string            `json:"correlationId"`
	Source        string            `json:"source"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Payload       json.RawMessage   `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// NewEnvelope wraps a payload in a fresh envelope.
func NewEnvelope(eventType, correlationID, source string, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshaling %s payload: %w", eventType, err)
	}
	return EventEnvelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		CorrelationID: correlationID,
		Source:        source,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// DecodeEnvelope parses a raw broker message body.
func DecodeEnvelope(body []byte) (EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return EventEnvelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.EventID == uuid.Nil {
		return EventEnvelope{}, fmt.Errorf("envelope missing eventId")
	}
	if env.EventType == "" {
		return EventEnvelope{}, fmt.Errorf("envelope missing eventType")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into out.
func (e EventEnvelope) DecodePayload(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.EventType, err)
	}
	return nil
}

// Encode serializes the envelope for the wire.
func (e EventEnvelope) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", e.EventType, err)
	}
	return body, nil
}
