package constants

const ApiVersionPath = "/api/v1"

// request headers
const HeaderAuthorization = "Authorization"
const HeaderWalletSignature = "X-Wallet-Signature"
const HeaderTimestamp = "X-Timestamp"
const HeaderRateLimitLimit = "X-RateLimit-Limit"
const HeaderRateLimitRemaining = "X-RateLimit-Remaining"
const HeaderRateLimitReset = "X-RateLimit-Reset"
const HeaderRetryAfter = "Retry-After"

const CurrencyUSDC = "USDC"
const CurrencyUSDT = "USDT"

const ApiKeyPrefixClient = "rc_live_"
const ApiKeyPrefixProvider = "rc_prov_live_"

const ProtocolTreasuryAccount = "acct_treasury"

// store key prefixes
const (
	KeyPrefixTask     = "task:"
	KeyPrefixResource = "res:"
	KeyPrefixProvider = "prov:"
	KeyPrefixAccount  = "acct:"
	KeyPrefixApiKey   = "key:"
	KeyPrefixBalance  = "bal:"
	KeyPrefixBilling  = "bill:"
	KeyPrefixInvoice  = "inv:"
	KeyPrefixStake    = "stake:"
	KeyPrefixSlash    = "slash:"
	KeyPrefixPayout   = "payout:"
	KeyPrefixLogs     = "logs:"
	KeyPrefixMetrics  = "metric:"
)

const REDIS_EVENT_CHANNEL = "rc:task-events"
const REDIS_RATELIMIT_PREFIX = "rc:rl:"

const TASK_PAYOUT = "payout.process"

const DefaultTaskTimeoutSeconds = 3600
const DefaultListLimit = 50
const MaxListLimit = 200
const MaxMetricSamples = 500
