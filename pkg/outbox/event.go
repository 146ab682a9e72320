package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

const SchemaVersion = 1

// Actor is the user (or moderator) whose action produced the event.
type Actor struct {
	UID  string `json:"uid"`
	Role string `json:"role,omitempty"`
}

// Event is a social change to queue in the same transaction that made it.
type Event struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *Actor
	Data          any
	OccurredAt    time.Time
}

// Envelope is what outbox_events.payload holds and what subscribers receive.
type Envelope struct {
	SchemaVersion int                   `json:"schema_version"`
	EventID       string                `json:"event_id"`
	EventType     enums.OutboxEventType `json:"event_type"`
	OccurredAt    time.Time             `json:"occurred_at"`
	Actor         *Actor                `json:"actor,omitempty"`
	Data          json.RawMessage       `json:"data"`
}

func (e Event) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	case e.AggregateType != e.EventType.Aggregate():
		return fmt.Errorf("%s events belong to %s, not %q", e.EventType, e.EventType.Aggregate(), e.AggregateType)
	case strings.TrimSpace(e.AggregateID) == "":
		return fmt.Errorf("aggregate id required for %s", e.EventType)
	}
	return nil
}

// row seals the event into an envelope and the outbox row that carries it.
func (e Event) row(now time.Time) (models.OutboxEvent, Envelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	env := Envelope{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		EventType:     e.EventType,
		OccurredAt:    occurred.UTC(),
		Actor:         e.Actor,
		Data:          data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, err
	}
	return models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}, env, nil
}

// DecodeEnvelope parses a stored payload and rejects envelopes that carry no
// identity or no data.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return Envelope{}, errors.New("envelope missing event_id")
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, errors.New("envelope missing data")
	}
	return env, nil
}
