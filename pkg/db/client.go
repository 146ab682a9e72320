package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultTxMaxAttempts = 5
	retryBackoffBase     = 15 * time.Millisecond
)

// RetryObserver is notified whenever a transaction is replayed or gives up.
type RetryObserver interface {
	TxRetried(op string)
	TxExhausted(op string)
}

// Options tunes how WithTx runs transactions.
type Options struct {
	MaxAttempts int
	Isolation   sql.IsolationLevel
	Observer    RetryObserver
	Logger      *logger.Logger
}

// Client wraps the shared GORM connection.
type Client struct {
	conn        *gorm.DB
	maxAttempts int
	isolation   sql.IsolationLevel
	observer    RetryObserver
	logg        *logger.Logger
}

// Txer runs a closure inside a retried transaction.
type Txer interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// New boots a GORM client using the provided configuration.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger, observer RetryObserver) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	})

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}

	applyPoolSettings(sqlDB, cfg)

	if logg != nil {
		logg.Info(ctx, "database connection established")
	}

	return Wrap(conn, Options{
		MaxAttempts: cfg.TxMaxAttempts,
		Isolation:   ParseIsolation(cfg.TxIsolation),
		Observer:    observer,
		Logger:      logg,
	}), nil
}

// Wrap adopts an already opened connection.
func Wrap(conn *gorm.DB, opts Options) *Client {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = defaultTxMaxAttempts
	}
	return &Client{
		conn:        conn,
		maxAttempts: attempts,
		isolation:   opts.Isolation,
		observer:    opts.Observer,
		logg:        opts.Logger,
	}
}

// ParseIsolation maps the configured isolation name onto a sql level.
func ParseIsolation(value string) sql.IsolationLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "serializable":
		return sql.LevelSerializable
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "read_committed":
		return sql.LevelReadCommitted
	default:
		return sql.LevelDefault
	}
}

func applyPoolSettings(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exec wraps GORM's Exec with context propagation.
func (c *Client) Exec(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Exec(query, args...)
}

// Raw wraps GORM's Raw with context propagation.
func (c *Client) Raw(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Raw(query, args...)
}

// WithTx executes fn inside a transaction, rolling back on error/panic.
// The whole closure is replayed when the store reports a write conflict; once
// the attempts are spent the call fails with a transient error.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	op := OperationFromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if c.observer != nil {
				c.observer.TxRetried(op)
			}
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		lastErr = c.runOnce(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	if c.observer != nil {
		c.observer.TxExhausted(op)
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"tx_op": op, "attempts": c.maxAttempts})
		c.logg.Warn(logCtx, "transaction retry limit reached")
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransient, lastErr, "concurrent update conflict, retry the request")
}

func (c *Client) runOnce(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	var opts []*sql.TxOptions
	if c.isolation != sql.LevelDefault {
		opts = append(opts, &sql.TxOptions{Isolation: c.isolation})
	}

	tx := c.conn.WithContext(ctx).Begin(opts...)
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt-1) * retryBackoffBase)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type opKey struct{}

// WithOperation labels transactions started from ctx for metrics and logs.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, opKey{}, op)
}

// OperationFromContext returns the label set by WithOperation.
func OperationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(opKey{}).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
