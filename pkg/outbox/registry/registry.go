// Package registry routes outbox rows to their topic and typed payload.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
)

// payloadTypes decides the Go type each event's data decodes into. Every
// event type in enums must have an entry.
var payloadTypes = map[enums.OutboxEventType]func() any{
	enums.EventUserBlocked:                  func() any { return &payloads.BlockEvent{} },
	enums.EventUserUnblocked:                func() any { return &payloads.BlockEvent{} },
	enums.EventFollowRequested:              func() any { return &payloads.FollowEvent{} },
	enums.EventFollowApproved:               func() any { return &payloads.FollowEvent{} },
	enums.EventFollowRejected:               func() any { return &payloads.FollowEvent{} },
	enums.EventUserUnfollowed:               func() any { return &payloads.FollowEvent{} },
	enums.EventPostTakenDown:                func() any { return &payloads.TakedownEvent{} },
	enums.EventCommentTakenDown:             func() any { return &payloads.TakedownEvent{} },
	enums.EventReportFiled:                  func() any { return &payloads.ReportFiledEvent{} },
	enums.EventReportResolved:               func() any { return &payloads.ReportResolvedEvent{} },
	enums.EventDisputeOpened:                func() any { return &payloads.DisputeOpenedEvent{} },
	enums.EventDisputeResolved:              func() any { return &payloads.DisputeResolvedEvent{} },
	enums.EventCreatorVerificationRequested: func() any { return &payloads.VerificationEvent{} },
	enums.EventCreatorVerificationDecided:   func() any { return &payloads.VerificationEvent{} },
}

// EventDescriptor is where an event type is published and what it carries.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is an outbox row that passed validation, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row the publisher should dead-letter instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry routes every known event type to the social topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.SocialTopic)
	if topic == "" {
		return nil, fmt.Errorf("social topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(payloadTypes))}
	for _, eventType := range enums.OutboxEventTypes() {
		factory, ok := payloadTypes[eventType]
		if !ok {
			return nil, fmt.Errorf("no payload type registered for %s", eventType)
		}
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: eventType.Aggregate(),
			Topic:         topic,
			newPayload:    factory,
		}
	}
	return reg, nil
}

// Topics lists the distinct topics events can be routed to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]bool)
	var topics []string
	for _, desc := range r.entries {
		if !seen[desc.Topic] {
			seen[desc.Topic] = true
			topics = append(topics, desc.Topic)
		}
	}
	return topics
}

// Resolve validates the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row will not change on a second try.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
