package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/registry"
)

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	events       []models.OutboxEvent
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
	backlogErr   error
}

func (r *fakeRepo) Pending(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	if limit < len(r.events) {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *fakeRepo) Backlog(context.Context) (int64, time.Time, error) {
	if r.backlogErr != nil {
		return 0, time.Time{}, r.backlogErr
	}
	var oldest time.Time
	if len(r.events) > 0 {
		oldest = r.events[0].CreatedAt
	}
	return int64(len(r.events)), oldest, nil
}

func (r *fakeRepo) MarkPublished(_ context.Context, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *fakeRepo) MarkDeadLettered(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.deadLettered = append(r.deadLettered, id)
	return nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (r *fakeDLQRepo) Record(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.entries = append(r.entries, outbox.DeadLetterFor(event, reason, cause))
	return nil
}

type fakePublishResult struct {
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	if len(p.results) == 0 {
		return fakePublishResult{}
	}
	res := p.results[0]
	p.results = p.results[1:]
	return res
}

type fakeObserver struct {
	results []string
	backlog []int64
	ages    []time.Duration
}

func (o *fakeObserver) ObserveBacklog(pending int64, age time.Duration) {
	o.backlog = append(o.backlog, pending)
	o.ages = append(o.ages, age)
}

func (o *fakeObserver) ObservePublish(result string, _ time.Duration) {
	o.results = append(o.results, result)
}

func blockEvent(t *testing.T, blocker, target string) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.BlockEvent{BlockerUID: blocker, BlockedUID: target})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.Envelope{
		SchemaVersion: outbox.SchemaVersion,
		EventID:       uuid.NewString(),
		EventType:     enums.EventUserBlocked,
		OccurredAt:    time.Now().UTC(),
		Actor:         &outbox.Actor{UID: blocker},
		Data:          data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		Base:          models.Base{ID: uuid.New()},
		EventType:     enums.EventUserBlocked,
		AggregateType: enums.AggregateUser,
		AggregateID:   blocker,
		Payload:       envelope,
	}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher, dlq *fakeDLQRepo, obs *fakeObserver, outboxCfg config.OutboxConfig) *Service {
	t.Helper()
	return newTestServiceWithTopics(t, repo, map[string]*fakePublisher{"social-events": pub}, dlq, obs, outboxCfg)
}

func newTestServiceWithTopics(t *testing.T, repo *fakeRepo, pubs map[string]*fakePublisher, dlq *fakeDLQRepo, obs *fakeObserver, outboxCfg config.OutboxConfig) *Service {
	t.Helper()
	cfg := &config.Config{
		PubSub: config.PubSubConfig{SocialTopic: "social-events"},
		Outbox: outboxCfg,
	}
	if _, ok := pubs["social-dlq"]; ok {
		cfg.PubSub.SocialDLQTopic = "social-dlq"
	}
	reg, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	params := ServiceParams{
		Config:        cfg,
		Logger:        logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:            fakeDB{},
		PubSub:        fakePubSub{},
		Repository:    repo,
		DLQRepository: dlq,
		Registry:      reg,
		PublisherFactory: func(topic string) publisher {
			pub, ok := pubs[topic]
			if !ok {
				t.Fatalf("unexpected topic %q", topic)
			}
			return pub
		},
	}
	if obs != nil {
		params.Metrics = obs
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{blockEvent(t, "alice", "bob"), blockEvent(t, "carol", "dave")}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}, fakePublishResult{}}}
	obs := &fakeObserver{}
	svc := newTestService(t, repo, pub, &fakeDLQRepo{}, obs, config.OutboxConfig{})

	n, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows consumed got %d", n)
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if len(obs.results) != 2 || obs.results[0] != "failed" || obs.results[1] != "published" {
		t.Fatalf("unexpected observations %v", obs.results)
	}
}

func TestPublishCarriesEventAttributes(t *testing.T) {
	event := blockEvent(t, "alice", "bob")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, &fakeDLQRepo{}, nil, config.OutboxConfig{})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["event_type"] != string(enums.EventUserBlocked) || msg.Attributes["aggregate_id"] != "alice" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	if msg.Attributes["event_id"] == "" {
		t.Fatalf("event_id attribute missing")
	}
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("payload should be forwarded untouched")
	}
}

func TestUnknownEventIsDeadLettered(t *testing.T) {
	event := blockEvent(t, "alice", "bob")
	event.EventType = "order_created"
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, dlq, nil, config.OutboxConfig{})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("unknown events must not be published")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonUnknownEvent {
		t.Fatalf("expected unknown-event dlq entry, got %+v", dlq.entries)
	}
	if !bytes.Equal(dlq.entries[0].Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if len(repo.deadLettered) != 1 || repo.deadLettered[0] != event.ID {
		t.Fatalf("expected row retired, got %v", repo.deadLettered)
	}
}

func TestDeadLetterNoticeGoesToDLQTopic(t *testing.T) {
	event := blockEvent(t, "alice", "bob")
	event.EventType = "order_created"
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	social, dlqTopic := &fakePublisher{}, &fakePublisher{}
	svc := newTestServiceWithTopics(t, repo, map[string]*fakePublisher{"social-events": social, "social-dlq": dlqTopic}, &fakeDLQRepo{}, nil, config.OutboxConfig{})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(social.messages) != 0 {
		t.Fatalf("dead-lettered rows must not reach the social topic")
	}
	if len(dlqTopic.messages) != 1 {
		t.Fatalf("expected one dead-letter notice got %d", len(dlqTopic.messages))
	}
	attrs := dlqTopic.messages[0].Attributes
	if attrs["error_reason"] != string(enums.OutboxDLQReasonUnknownEvent) || attrs["outbox_id"] != event.ID.String() {
		t.Fatalf("unexpected notice attributes %v", attrs)
	}
}

func TestMaxAttemptsDeadLetters(t *testing.T) {
	event := blockEvent(t, "alice", "bob")
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	svc := newTestService(t, repo, pub, dlq, nil, config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows should not be marked failed")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected reason %s", entry.ErrorReason)
	}
	if entry.AttemptCount != 2 {
		t.Fatalf("expected attempt count 2 got %d", entry.AttemptCount)
	}
}

func TestReportBacklog(t *testing.T) {
	event := blockEvent(t, "alice", "bob")
	event.CreatedAt = time.Now().Add(-time.Minute)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	obs := &fakeObserver{}
	svc := newTestService(t, repo, &fakePublisher{}, &fakeDLQRepo{}, obs, config.OutboxConfig{})

	svc.reportBacklog(context.Background())
	if len(obs.backlog) != 1 || obs.backlog[0] != 1 {
		t.Fatalf("expected backlog of 1, got %v", obs.backlog)
	}
	if obs.ages[0] < time.Minute {
		t.Fatalf("expected oldest age of at least a minute, got %v", obs.ages[0])
	}

	repo.backlogErr = errors.New("timeout")
	svc.reportBacklog(context.Background())
	if len(obs.backlog) != 1 {
		t.Fatalf("a failed backlog query must not update the gauges")
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeDLQRepo{}, nil, config.OutboxConfig{})
	if svc.batchSize != defaultBatchSize || svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected defaults batch=%d attempts=%d", svc.batchSize, svc.maxAttempts)
	}
	if svc.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", svc.pollInterval)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(6*time.Second, time.Second, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap got %v", got)
	}
	if got := nextBackoff(0, time.Second, maxBackoff); got != 2*time.Second {
		t.Fatalf("expected doubling from base got %v", got)
	}
}
