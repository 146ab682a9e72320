package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	Backlog(ctx context.Context) (int64, time.Time, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	MarkDeadLettered(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	Record(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publishObserver interface {
	ObservePublish(result string, duration time.Duration)
	ObserveBacklog(pending int64, oldestAge time.Duration)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	DLQRepository    dlqRepository
	Registry         registryResolver
	Metrics          publishObserver
	PublisherFactory publisherFactory
}

// Service relays committed social events from the outbox table to Pub/Sub.
// Rows are delivered at least once; subscribers dedupe on event_id.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	dlq              dlqRepository
	registry         registryResolver
	metrics          publishObserver
	publisherFactory publisherFactory
	dlqTopic         string
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	out := params.Config.Outbox
	batch := out.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := out.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := out.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		dlq:              params.DLQRepository,
		registry:         params.Registry,
		metrics:          params.Metrics,
		publisherFactory: factory,
		dlqTopic:         strings.TrimSpace(params.Config.PubSub.SocialDLQTopic),
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		published, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = s.pollInterval

		// a full batch means more rows are probably waiting
		if published == s.batchSize {
			continue
		}
		s.reportBacklog(ctx)
		if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// processBatch handles one page of pending rows in creation order and returns
// how many rows it consumed.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	events, err := s.repo.Pending(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	for _, event := range events {
		if err := s.handle(ctx, event); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

func (s *Service) handle(ctx context.Context, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonUnknownEvent, err)
	}

	fields := eventFields(event, resolved)
	start := time.Now()
	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		s.observe("published", start)
		if err := s.repo.MarkPublished(ctx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		s.observe("rejected", start)
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	s.observe("failed", start)
	if event.AttemptCount+1 >= s.maxAttempts {
		return s.deadLetter(ctx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	fields["attempt_count"] = event.AttemptCount + 1
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pubErr.Error()), "outbox publish failed")
	if err := s.repo.MarkFailed(ctx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the row into the DLQ and retires it in one transaction.
func (s *Service) deadLetter(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := eventFields(event, nil)
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.dlq.Record(tx, event, reason, cause); err != nil {
			return fmt.Errorf("record dead letter %s: %w", event.ID, err)
		}
		if err := s.repo.MarkDeadLettered(tx, event.ID, cause); err != nil {
			return fmt.Errorf("retire %s: %w", event.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.announceDeadLetter(ctx, event, reason, fields)
	return nil
}

// announceDeadLetter forwards the retired row to the dead-letter topic when
// one is configured. The DLQ table is the record; this notice is best effort.
func (s *Service) announceDeadLetter(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, fields map[string]any) {
	if s.dlqTopic == "" {
		return
	}
	pub := s.publisherFactory(s.dlqTopic)
	if pub == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"outbox_id":      event.ID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"error_reason":   string(reason),
		},
	}
	if res := pub.Publish(publishCtx, msg); res != nil {
		if _, err := res.Get(publishCtx); err != nil {
			s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "dead-letter notice not published")
		}
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// reportBacklog runs between polls; a slow or failing count is logged and
// never stops publishing.
func (s *Service) reportBacklog(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	pending, oldest, err := s.repo.Backlog(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox backlog query failed")
		return
	}
	var age time.Duration
	if !oldest.IsZero() {
		age = time.Since(oldest)
	}
	s.metrics.ObserveBacklog(pending, age)
}

func (s *Service) observe(result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePublish(result, time.Since(start))
	}
}

func eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.Actor != nil {
			fields["actor_uid"] = resolved.Envelope.Actor.UID
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

var _ outboxRepository = (*outbox.Repository)(nil)
