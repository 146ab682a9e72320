package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
	"github.com/shopspring/decimal"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	payloadBytes := mustMarshal(t, payloads.DisputeResolvedEvent{
		DisputeID:    "d-1",
		ContractID:   "c-1",
		Outcome:      enums.DisputeOutcomeSplit,
		RefundAmount: decimal.RequireFromString("42.50"),
		BlockBy:      enums.DisputePartyNone,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventDisputeResolved,
		AggregateType: enums.AggregateDispute,
		AggregateID:   "d-1",
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "social-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.DisputeResolvedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if !payload.RefundAmount.Equal(decimal.RequireFromString("42.5")) {
		t.Fatalf("refund mismatch %s", payload.RefundAmount)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryResolveRejects(t *testing.T) {
	reg := newTestEventRegistry(t)
	validPayload := mustEnvelope(t, mustMarshal(t, payloads.BlockEvent{BlockerUID: "a", BlockedUID: "b"}))

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "mystery",
			AggregateType: enums.AggregateUser,
			AggregateID:   "a",
			Payload:       validPayload,
		},
		"aggregate mismatch": {
			EventType:     enums.EventUserBlocked,
			AggregateType: enums.AggregatePost,
			AggregateID:   "a",
			Payload:       validPayload,
		},
		"missing aggregate id": {
			EventType:     enums.EventUserBlocked,
			AggregateType: enums.AggregateUser,
			Payload:       validPayload,
		},
		"null data": {
			EventType:     enums.EventUserBlocked,
			AggregateType: enums.AggregateUser,
			AggregateID:   "a",
			Payload:       mustEnvelope(t, []byte("null")),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetryable NonRetryableError
			if !errors.As(err, &nonRetryable) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range enums.OutboxEventTypes() {
		desc, ok := reg.entries[eventType]
		if !ok {
			t.Fatalf("%s not registered", eventType)
		}
		if desc.AggregateType != eventType.Aggregate() || desc.newPayload() == nil {
			t.Fatalf("%s: bad descriptor %+v", eventType, desc)
		}
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic error")
	}
	reg := newTestEventRegistry(t)
	if topics := reg.Topics(); len(topics) != 1 || topics[0] != "social-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{SocialTopic: "social-topic"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.Envelope{
		SchemaVersion: outbox.SchemaVersion,
		EventID:       "evt-1",
		EventType:     enums.EventDisputeResolved,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	})
}
