package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db/dbtest"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	w := NewWriter(repo, nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return w.Emit(ctx, tx, Event{
			EventType:     enums.EventUserBlocked,
			AggregateType: enums.AggregateUser,
			AggregateID:   "uid-a",
			Actor:         &Actor{UID: "uid-a"},
			Data:          payloads.BlockEvent{BlockerUID: "uid-a", BlockedUID: "uid-b", Source: "user"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, env.SchemaVersion)
	require.Equal(t, enums.EventUserBlocked, env.EventType)
	require.NotEmpty(t, env.EventID)
	require.Contains(t, string(rows[0].Payload), `"event_id"`)

	var data payloads.BlockEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "uid-b", data.BlockedUID)

	count, oldest, err := repo.Backlog(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.False(t, oldest.IsZero())

	require.NoError(t, repo.MarkPublished(ctx, rows[0].ID))
	rows, err = repo.Pending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, rows)

	count, oldest, err = repo.Backlog(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.True(t, oldest.IsZero())

	require.ErrorIs(t, repo.MarkPublished(ctx, uuid.New()), gorm.ErrRecordNotFound)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	w := NewWriter(NewRepository(client.DB()), nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.Emit(ctx, tx, Event{
			EventType:     enums.EventFollowRequested,
			AggregateType: enums.AggregateFollowRequest,
			AggregateID:   "req-1",
			Data:          payloads.FollowEvent{FromUID: "a", ToUID: "b"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	client := dbtest.Open(t)
	w := NewWriter(NewRepository(client.DB()), nil)
	ctx := context.Background()

	valid := Event{EventType: enums.EventUserBlocked, AggregateType: enums.AggregateUser, AggregateID: "uid-a", Data: payloads.BlockEvent{}}
	require.Error(t, w.Emit(ctx, nil, valid), "no transaction")

	for name, mutate := range map[string]func(*Event){
		"event type":     func(e *Event) { e.EventType = "nope" },
		"aggregate type": func(e *Event) { e.AggregateType = "planet" },
		"aggregate id":   func(e *Event) { e.AggregateID = "  " },
		"data":           func(e *Event) { e.Data = make(chan int) },
	} {
		ev := valid
		mutate(&ev)
		require.Error(t, w.Emit(ctx, client.DB(), ev), name)
	}
}

func TestDecodeEnvelopeRejectsIncompletePayloads(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":   `{`,
		"no id":      `{"schema_version":1,"data":{"a":1}}`,
		"null data":  `{"event_id":"e1","data":null}`,
		"empty data": `{"event_id":"e1"}`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		require.Error(t, err, name)
	}
	env, err := DecodeEnvelope([]byte(`{"schema_version":1,"event_id":"e1","event_type":"user_blocked","data":{}}`))
	require.NoError(t, err)
	require.Equal(t, "e1", env.EventID)
}

func TestDeadLettersRecordTruncatesAndFinds(t *testing.T) {
	client := dbtest.Open(t)
	letters := NewDeadLetters(client.DB())
	ctx := context.Background()

	event := models.OutboxEvent{
		EventType:     enums.EventUserBlocked,
		AggregateType: enums.AggregateUser,
		AggregateID:   "uid-a",
		Payload:       json.RawMessage(`{"schema_version":1}`),
		AttemptCount:  3,
	}
	event.ID = uuid.New()
	cause := errors.New(strings.Repeat("x", 2*maxDeadLetterMessage))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return letters.Record(tx, event, enums.OutboxDLQReasonMaxAttempts, cause)
	}))

	entry, err := letters.ForEvent(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, 4, entry.AttemptCount)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.Len(t, *entry.ErrorMessage, maxDeadLetterMessage)

	missing, err := letters.ForEvent(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		return letters.Record(tx, event, "gave_up", cause)
	})
	require.Error(t, err)
}
