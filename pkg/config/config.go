package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Social       SocialConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Tracing      TracingConfig
}

// Load reads the ATELIER_* environment, fills a DSN from the discrete DB
// variables when ATELIER_DB_DSN is unset and reports every invalid setting
// at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish() error {
	if c.DB.DSN == "" {
		dsn, err := c.DB.composeDSN()
		if err != nil {
			return err
		}
		c.DB.DSN = dsn
	}
	return errors.Join(c.App.validate(), c.DB.validateTx(), c.Social.validate())
}

type AppConfig struct {
	Env          string   `envconfig:"ATELIER_APP_ENV" required:"true"`
	Port         string   `envconfig:"ATELIER_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"ATELIER_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"ATELIER_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"ATELIER_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ATELIER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) validate() error {
	switch strings.ToLower(a.LogFormat) {
	case "", "json", "console":
		return nil
	}
	return fmt.Errorf("%s: unsupported format %q", EnvLogFormat, a.LogFormat)
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"ATELIER_DB_DSN"`

	// Used only when DSN is empty.
	Host     string `envconfig:"ATELIER_DB_HOST"`
	Port     int    `envconfig:"ATELIER_DB_PORT" default:"5432"`
	User     string `envconfig:"ATELIER_DB_USER"`
	Password string `envconfig:"ATELIER_DB_PASSWORD"`
	Name     string `envconfig:"ATELIER_DB_NAME"`
	SSLMode  string `envconfig:"ATELIER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ATELIER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ATELIER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ATELIER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ATELIER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxMaxAttempts bounds how many times a conflicting transaction is replayed.
	TxMaxAttempts int    `envconfig:"ATELIER_DB_TX_MAX_ATTEMPTS" default:"5"`
	TxIsolation   string `envconfig:"ATELIER_DB_TX_ISOLATION" default:"serializable"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ATELIER_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"ATELIER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ATELIER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ATELIER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ATELIER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ATELIER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the identity provider's HS256 tokens. Audience is
// checked only when set; TokenTTL applies to tokens this service signs itself
// for local tooling.
type JWTConfig struct {
	Secret   string        `envconfig:"ATELIER_JWT_SECRET" required:"true"`
	Issuer   string        `envconfig:"ATELIER_JWT_ISSUER" required:"true"`
	Audience string        `envconfig:"ATELIER_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"ATELIER_JWT_LEEWAY" default:"30s"`
	TokenTTL time.Duration `envconfig:"ATELIER_JWT_TOKEN_TTL" default:"1h"`
}

// SocialConfig throttles social writes per authenticated user.
type SocialConfig struct {
	RateLimitWindow  time.Duration `envconfig:"ATELIER_SOCIAL_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerUser int           `envconfig:"ATELIER_SOCIAL_RATE_LIMIT_PER_USER" default:"120"`
	IdempotencyTTL   time.Duration `envconfig:"ATELIER_SOCIAL_IDEMPOTENCY_TTL" default:"24h"`
}

func (s SocialConfig) validate() error {
	var errs []error
	if s.RateLimitPerUser < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", EnvSocialRateLimit))
	}
	if s.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvSocialRateWindow))
	}
	return errors.Join(errs...)
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ATELIER_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"ATELIER_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"ATELIER_GCP_CREDENTIALS_JSON"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"ATELIER_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"ATELIER_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"ATELIER_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type PubSubConfig struct {
	SocialTopic    string `envconfig:"ATELIER_PUBSUB_SOCIAL_TOPIC" default:"atelier-social-events"`
	SocialDLQTopic string `envconfig:"ATELIER_PUBSUB_SOCIAL_DLQ_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ATELIER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ATELIER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ATELIER_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type TracingConfig struct {
	Enabled      bool    `envconfig:"ATELIER_TRACING_ENABLED" default:"false"`
	OTLPEndpoint string  `envconfig:"ATELIER_TRACING_OTLP_ENDPOINT"`
	SampleRatio  float64 `envconfig:"ATELIER_TRACING_SAMPLE_RATIO" default:"1"`
}

func (db DBConfig) composeDSN() (string, error) {
	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	return u.String(), nil
}

func (db *DBConfig) validateTx() error {
	if db.TxMaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvDBTxMaxAttempts)
	}
	switch strings.ToLower(strings.TrimSpace(db.TxIsolation)) {
	case "", "serializable", "repeatable_read", "read_committed", "default":
		return nil
	default:
		return fmt.Errorf("%s: unsupported isolation %q", EnvDBTxIsolation, db.TxIsolation)
	}
}
