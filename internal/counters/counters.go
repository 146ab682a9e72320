// Package counters owns every write to the denormalized social counts.
package counters

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

// Counter names a denormalized count column.
type Counter string

const (
	FollowerCount Counter = "follower_count"
	LikeCount     Counter = "like_count"
	CommentCount  Counter = "comment_count"
)

type location struct {
	table  string
	keyCol string
}

var locations = map[Counter]location{
	FollowerCount: {table: "public_profiles", keyCol: "uid"},
	LikeCount:     {table: "posts", keyCol: "id"},
	CommentCount:  {table: "posts", keyCol: "id"},
}

// ClampRecorder is notified when a decrement would have gone below zero.
type ClampRecorder interface {
	CounterClamped(counter string)
}

// Maintainer adjusts counters inside the caller's transaction.
type Maintainer struct {
	clamps ClampRecorder
	logg   *logger.Logger
}

// New builds a Maintainer. Both arguments are optional.
func New(clamps ClampRecorder, logg *logger.Logger) *Maintainer {
	return &Maintainer{clamps: clamps, logg: logg}
}

// Adjust reads the current value of counter on the row identified by key,
// applies delta and writes the result back, clamping at zero. It must run on
// the same tx as the edge or content write that caused the change.
func (m *Maintainer) Adjust(ctx context.Context, tx *gorm.DB, counter Counter, key any, delta int64) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "counter adjustments require a transaction")
	}
	loc, ok := locations[counter]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown counter %q", counter))
	}

	current, err := Read(ctx, tx, counter, key)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return current, nil
	}

	next := current + delta
	if next < 0 {
		m.clamped(ctx, counter, key, current, delta)
		next = 0
	}

	res := tx.WithContext(ctx).
		Table(loc.table).
		Where(loc.keyCol+" = ?", key).
		UpdateColumn(string(counter), next)
	if res.Error != nil {
		return 0, res.Error
	}
	return next, nil
}

// Read returns the stored value of counter for key.
func Read(ctx context.Context, tx *gorm.DB, counter Counter, key any) (int64, error) {
	loc, ok := locations[counter]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown counter %q", counter))
	}
	var values []int64
	if err := tx.WithContext(ctx).
		Table(loc.table).
		Where(loc.keyCol+" = ?", key).
		Limit(1).
		Pluck(string(counter), &values).Error; err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, gorm.ErrRecordNotFound, fmt.Sprintf("%s row not found", loc.table))
	}
	return values[0], nil
}

func (m *Maintainer) clamped(ctx context.Context, counter Counter, key any, current, delta int64) {
	if m.clamps != nil {
		m.clamps.CounterClamped(string(counter))
	}
	if m.logg == nil {
		return
	}
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"counter": string(counter),
		"key":     fmt.Sprint(key),
		"current": current,
		"delta":   delta,
	})
	m.logg.Warn(logCtx, "counter.clamped")
}
