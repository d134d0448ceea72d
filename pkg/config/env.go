package config

// EnvPrefix is handed to envconfig; every field tag already carries the full name.
const EnvPrefix = "ORDERFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "ORDERFLOW_APP_ENV"
	EnvPort         = "ORDERFLOW_APP_PORT"
	EnvLogLevel     = "ORDERFLOW_LOG_LEVEL"
	EnvDBDSN        = "ORDERFLOW_DB_DSN"
	EnvDBHost       = "ORDERFLOW_DB_HOST"
	EnvDBUser       = "ORDERFLOW_DB_USER"
	EnvDBName       = "ORDERFLOW_DB_NAME"
	EnvDBIsolation  = "ORDERFLOW_DB_ISOLATION"
	EnvRedisURL     = "ORDERFLOW_REDIS_URL"
	EnvJWTSecret    = "ORDERFLOW_JWT_SECRET"
	EnvJWTIssuer    = "ORDERFLOW_JWT_ISSUER"
	EnvJWTExpMins   = "ORDERFLOW_JWT_EXPIRATION_MINUTES"
	EnvGatewayKey   = "ORDERFLOW_GATEWAY_SERVER_KEY"
	EnvGatewayURL   = "ORDERFLOW_GATEWAY_SNAP_URL"
	EnvDPPercent    = "ORDERFLOW_PAYMENT_DP_PERCENT"
	EnvGCPProjectID = "ORDERFLOW_GCP_PROJECT_ID"
	EnvOrdersTopic  = "ORDERFLOW_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
