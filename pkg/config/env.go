package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "ATELIER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "ATELIER_APP_ENV"
	EnvPort         = "ATELIER_APP_PORT"
	EnvLogLevel     = "ATELIER_LOG_LEVEL"
	EnvLogFormat    = "ATELIER_LOG_FORMAT"
	EnvLogWarnStack = "ATELIER_LOG_WARN_STACK"

	EnvDBDSN           = "ATELIER_DB_DSN"
	EnvDBHost          = "ATELIER_DB_HOST"
	EnvDBPort          = "ATELIER_DB_PORT"
	EnvDBUser          = "ATELIER_DB_USER"
	EnvDBPassword      = "ATELIER_DB_PASSWORD"
	EnvDBName          = "ATELIER_DB_NAME"
	EnvDBSSLMode       = "ATELIER_DB_SSLMODE"
	EnvDBTxMaxAttempts = "ATELIER_DB_TX_MAX_ATTEMPTS"
	EnvDBTxIsolation   = "ATELIER_DB_TX_ISOLATION"

	EnvRedisURL = "ATELIER_REDIS_URL"

	EnvJWTSecret   = "ATELIER_JWT_SECRET"
	EnvJWTIssuer   = "ATELIER_JWT_ISSUER"
	EnvJWTAudience = "ATELIER_JWT_AUDIENCE"
	EnvJWTLeeway   = "ATELIER_JWT_LEEWAY"

	EnvSocialRateWindow = "ATELIER_SOCIAL_RATE_LIMIT_WINDOW"
	EnvSocialRateLimit  = "ATELIER_SOCIAL_RATE_LIMIT_PER_USER"

	EnvAutoMigrate = "ATELIER_AUTO_MIGRATE"

	EnvGCPProjectID       = "ATELIER_GCP_PROJECT_ID"
	EnvGCSBucket          = "ATELIER_GCS_BUCKET_NAME"
	EnvGCSUploadExpiry    = "ATELIER_GCS_UPLOAD_URL_EXPIRY"
	EnvGCSDownloadExpiry  = "ATELIER_GCS_DOWNLOAD_URL_EXPIRY"
	EnvPubSubSocialTopic  = "ATELIER_PUBSUB_SOCIAL_TOPIC"
	EnvPubSubDLQTopic     = "ATELIER_PUBSUB_SOCIAL_DLQ_TOPIC"
	EnvTracingEnabled     = "ATELIER_TRACING_ENABLED"
	EnvTracingEndpoint    = "ATELIER_TRACING_OTLP_ENDPOINT"
	EnvTracingSampleRatio = "ATELIER_TRACING_SAMPLE_RATIO"
)
