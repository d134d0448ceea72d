package config

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Payment      PaymentConfig
	Cancellation CancellationConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.DB.IsolationLevel(); err != nil {
		return nil, err
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string   `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"ORDERFLOW_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Isolation applies to every transaction opened through db.Client.WithTx.
	Isolation     string `envconfig:"ORDERFLOW_DB_ISOLATION" default:"serializable"`
	TxMaxRetries  uint64 `envconfig:"ORDERFLOW_DB_TX_MAX_RETRIES" default:"3"`
	TxRetryBaseMS int    `envconfig:"ORDERFLOW_DB_TX_RETRY_BASE_MS" default:"20"`
}

// IsolationLevel translates the configured name into a database/sql level.
func (db DBConfig) IsolationLevel() (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(db.Isolation)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "read_committed", "read committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read", "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, fmt.Errorf("unsupported %s value %q", EnvDBIsolation, db.Isolation)
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds the Snap credentials used for outbound charges and notification signatures.
type GatewayConfig struct {
	ServerKey    string        `envconfig:"ORDERFLOW_GATEWAY_SERVER_KEY" required:"true"`
	ClientKey    string        `envconfig:"ORDERFLOW_GATEWAY_CLIENT_KEY"`
	SnapURL      string        `envconfig:"ORDERFLOW_GATEWAY_SNAP_URL" default:"https://app.sandbox.midtrans.com/snap/v1"`
	IsProduction bool          `envconfig:"ORDERFLOW_GATEWAY_PRODUCTION" default:"false"`
	Timeout      time.Duration `envconfig:"ORDERFLOW_GATEWAY_TIMEOUT" default:"15s"`
	FinishURL    string        `envconfig:"ORDERFLOW_GATEWAY_FINISH_URL"`
	WebhookTTL   time.Duration `envconfig:"ORDERFLOW_GATEWAY_WEBHOOK_REPLAY_TTL" default:"72h"`
}

type PaymentConfig struct {
	DownPaymentPercent int           `envconfig:"ORDERFLOW_PAYMENT_DP_PERCENT" default:"50"`
	PendingTTL         time.Duration `envconfig:"ORDERFLOW_PAYMENT_PENDING_TTL" default:"24h"`
}

// DownPaymentFraction returns the configured down-payment share as a decimal in (0, 1].
func (p PaymentConfig) DownPaymentFraction() decimal.Decimal {
	return decimal.NewFromInt(int64(p.DownPaymentPercent)).Div(decimal.NewFromInt(100))
}

func (p PaymentConfig) validate() error {
	if p.DownPaymentPercent <= 0 || p.DownPaymentPercent > 100 {
		return fmt.Errorf("%s must be between 1 and 100, got %d", EnvDPPercent, p.DownPaymentPercent)
	}
	return nil
}

type CancellationConfig struct {
	Window time.Duration `envconfig:"ORDERFLOW_CANCELLATION_WINDOW" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic              string        `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC" default:"orderflow-order-events"`
	NotificationSubscription string        `envconfig:"ORDERFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"orderflow-order-notifications"`
	ProcessedEventTTL        time.Duration `envconfig:"ORDERFLOW_PUBSUB_PROCESSED_EVENT_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"15m"`
	OutboxRetentionDays int           `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

// RateLimitConfig throttles the unauthenticated webhook and the order-creating
// customer routes. A zero limit disables that counter.
type RateLimitConfig struct {
	Window            time.Duration `envconfig:"ORDERFLOW_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookIPLimit    int           `envconfig:"ORDERFLOW_RATE_LIMIT_WEBHOOK_IP" default:"600"`
	CheckoutUserLimit int           `envconfig:"ORDERFLOW_RATE_LIMIT_CHECKOUT_USER" default:"20"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
