package config

const EnvPrefix = "PAYOUT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv       = "PAYOUT_APP_ENV"
	EnvPort         = "PAYOUT_APP_PORT"
	EnvSigningKey   = "PAYOUT_WALLET_SIGNING_KEY"
	EnvNativeAmount = "PAYOUT_NATIVE_AMOUNT"
	EnvTatumAPIKey  = "PAYOUT_TATUM_API_KEY"
	EnvRedisURL     = "PAYOUT_REDIS_URL"
)
