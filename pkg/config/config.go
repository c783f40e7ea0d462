package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Cart         CartConfig
	Rates        RatesConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Metrics      MetricsConfig
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
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARTCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARTCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTCORE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CARTCORE_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARTCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARTCORE_DB_DSN"`
	Driver string `envconfig:"CARTCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARTCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"CARTCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARTCORE_DB_USER"`
	LegacyPassword string `envconfig:"CARTCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARTCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARTCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARTCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARTCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARTCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this at warn; zero disables it.
	SlowQuery time.Duration `envconfig:"CARTCORE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARTCORE_REDIS_ADDR"`
	Password     string        `envconfig:"CARTCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies customer bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"CARTCORE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CARTCORE_JWT_ISSUER" required:"true"`
}

type CartConfig struct {
	TTL             time.Duration `envconfig:"CARTCORE_CART_TTL" default:"720h"`
	MaxAttempts     int           `envconfig:"CARTCORE_CART_MAX_ATTEMPTS" default:"3"`
	RetryBackoff    time.Duration `envconfig:"CARTCORE_CART_RETRY_BACKOFF" default:"15ms"`
	IdempotencyTTL  time.Duration `envconfig:"CARTCORE_CART_IDEMPOTENCY_TTL" default:"24h"`
	DefaultCurrency string        `envconfig:"CARTCORE_CART_DEFAULT_CURRENCY" default:"USD"`
}

func (c CartConfig) validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvCartTTL)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvCartMaxAttempts)
	}
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("%s must be an ISO-4217 code", EnvCartDefaultCurrency)
	}
	return nil
}

// RatesConfig drives the flat tax/shipping provider. ShippingMethods maps a
// method name to its fee in minor units, e.g. "standard:500,express:1500".
type RatesConfig struct {
	TaxRateBPS            int64            `envconfig:"CARTCORE_TAX_RATE_BPS" default:"0"`
	ShippingMethods       map[string]int64 `envconfig:"CARTCORE_SHIPPING_METHODS" default:"standard:500"`
	DefaultShippingMethod string           `envconfig:"CARTCORE_DEFAULT_SHIPPING_METHOD" default:"standard"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARTCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARTCORE_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CARTCORE_CORS_ALLOWED_ORIGINS" default:"*"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARTCORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CARTCORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARTCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CartTopic string `envconfig:"CARTCORE_PUBSUB_CART_TOPIC" default:"cart-events"`
	DLQTopic  string `envconfig:"CARTCORE_PUBSUB_CART_DLQ_TOPIC" default:"cart-events-dlq"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CARTCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CARTCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CARTCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CARTCORE_OUTBOX_RETENTION" default:"168h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"CARTCORE_CRON_INTERVAL" default:"5m"`
	LockTTL        time.Duration `envconfig:"CARTCORE_CRON_LOCK_TTL" default:"4m"`
	JobTimeout     time.Duration `envconfig:"CARTCORE_CRON_JOB_TIMEOUT" default:"2m"`
	ExpiryBatchMax int           `envconfig:"CARTCORE_CRON_EXPIRY_BATCH" default:"500"`
}

// MetricsConfig controls the /metrics listener of the background workers;
// the API serves metrics on its own router.
type MetricsConfig struct {
	Addr string `envconfig:"CARTCORE_METRICS_ADDR" default:":9090"`
}

// RateLimitConfig throttles coupon attempts so codes cannot be brute forced.
// A zero window disables the limiter.
type RateLimitConfig struct {
	CouponWindow    time.Duration `envconfig:"CARTCORE_COUPON_RATE_WINDOW" default:"1m"`
	CouponIPLimit   int           `envconfig:"CARTCORE_COUPON_RATE_IP_LIMIT" default:"30"`
	CouponCartLimit int           `envconfig:"CARTCORE_COUPON_RATE_CART_LIMIT" default:"10"`
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
