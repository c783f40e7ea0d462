package config

const EnvPrefix = "CARTCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "CARTCORE_APP_ENV"
	EnvPort     = "CARTCORE_APP_PORT"
	EnvLogLevel = "CARTCORE_LOG_LEVEL"

	EnvDBDSN  = "CARTCORE_DB_DSN"
	EnvDBHost = "CARTCORE_DB_HOST"
	EnvDBUser = "CARTCORE_DB_USER"
	EnvDBName = "CARTCORE_DB_NAME"

	EnvRedisURL = "CARTCORE_REDIS_URL"

	EnvJWTSecret = "CARTCORE_JWT_SECRET"
	EnvJWTIssuer = "CARTCORE_JWT_ISSUER"

	EnvCartTTL             = "CARTCORE_CART_TTL"
	EnvCartMaxAttempts     = "CARTCORE_CART_MAX_ATTEMPTS"
	EnvCartDefaultCurrency = "CARTCORE_CART_DEFAULT_CURRENCY"

	EnvTaxRateBPS      = "CARTCORE_TAX_RATE_BPS"
	EnvShippingMethods = "CARTCORE_SHIPPING_METHODS"

	EnvGCPProjectID    = "CARTCORE_GCP_PROJECT_ID"
	EnvPubSubCartTopic = "CARTCORE_PUBSUB_CART_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
