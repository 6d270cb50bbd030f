package conf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

var config *MarketNode

// MarketNode is the marketplace server config
type MarketNode struct {
	API       API
	TLS       TLS
	Auth      Auth
	RateLimit RateLimit
	Redis     Redis
	Market    Market
	Storage   Storage
	Queue     Queue
	Notify    Notify
	MCS       MCS
}

type API struct {
	Port        int
	Domain      string
	CorsOrigins []string
	Pprof       bool
}

type TLS struct {
	CrtFile string
	KeyFile string
}

type Auth struct {
	AdminToken           string
	RequireSignature     bool
	TimestampSkewSeconds int
}

type RateLimit struct {
	Backend       string
	Requests      int
	WindowSeconds int
}

type Redis struct {
	Url      string
	Password string
}

type Market struct {
	ProtocolFeeRate         string
	SlashRate               string
	MinimumStake            string
	StakeCurrency           string
	PendingTTLSeconds       int
	HeartbeatTimeoutSeconds int
	SweepIntervalSeconds    int
	MaxLogLines             int
}

type Storage struct {
	DataDir string
}

type Queue struct {
	Backend string
	Workers int
}

type Notify struct {
	Backend string
}

type MCS struct {
	Enable        bool
	ApiKey        string
	AccessToken   string
	BucketName    string
	Network       string
	FileCachePath string
	GatewayUrl    string
}

func InitConfig(repoPath string) error {
	configFile := filepath.Join(repoPath, "config.toml")

	var c MarketNode
	metaData, err := toml.DecodeFile(configFile, &c)
	if err != nil {
		return fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	if err = requiredFieldsAreGiven(metaData); err != nil {
		return err
	}
	c.applyDefaults(repoPath)
	if err = c.Validate(); err != nil {
		return err
	}
	config = &c
	return nil
}

// SetConfig replaces the loaded config, for tests and embedded servers.
func SetConfig(c *MarketNode) {
	config = c
}

func GetConfig() *MarketNode {
	return config
}

func requiredFieldsAreGiven(metaData toml.MetaData) error {
	requiredFields := [][]string{
		{"API"},
		{"Market"},
		{"Storage"},

		{"API", "Port"},
		{"Market", "MinimumStake"},
		{"Storage", "DataDir"},
	}

	for _, v := range requiredFields {
		if !metaData.IsDefined(v...) {
			return fmt.Errorf("required field not given: %s", strings.Join(v, "."))
		}
	}
	return nil
}

func (c *MarketNode) applyDefaults(repoPath string) {
	if c.Auth.TimestampSkewSeconds <= 0 {
		c.Auth.TimestampSkewSeconds = 300
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Market.ProtocolFeeRate == "" {
		c.Market.ProtocolFeeRate = "0.05"
	}
	if c.Market.SlashRate == "" {
		c.Market.SlashRate = "0.1"
	}
	if c.Market.StakeCurrency == "" {
		c.Market.StakeCurrency = "USDC"
	}
	if c.Market.PendingTTLSeconds <= 0 {
		c.Market.PendingTTLSeconds = 86400
	}
	if c.Market.HeartbeatTimeoutSeconds <= 0 {
		c.Market.HeartbeatTimeoutSeconds = 120
	}
	if c.Market.SweepIntervalSeconds <= 0 {
		c.Market.SweepIntervalSeconds = 15
	}
	if c.Market.MaxLogLines <= 0 {
		c.Market.MaxLogLines = 10000
	}
	if !filepath.IsAbs(c.Storage.DataDir) {
		c.Storage.DataDir = filepath.Join(repoPath, c.Storage.DataDir)
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "inline"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Notify.Backend == "" {
		c.Notify.Backend = "memory"
	}
	if c.MCS.FileCachePath == "" {
		c.MCS.FileCachePath = filepath.Join(repoPath, "archive")
	}
}

func (c *MarketNode) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid API.Port: %d", c.API.Port)
	}
	for name, v := range map[string]string{
		"Market.ProtocolFeeRate": c.Market.ProtocolFeeRate,
		"Market.SlashRate":       c.Market.SlashRate,
		"Market.MinimumStake":    c.Market.MinimumStake,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("invalid %s: must not be negative", name)
		}
	}
	if rate := c.FeeRate(); rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("invalid Market.ProtocolFeeRate: %s is above 1", rate)
	}
	if c.Market.StakeCurrency != "USDC" && c.Market.StakeCurrency != "USDT" {
		return fmt.Errorf("invalid Market.StakeCurrency: %s", c.Market.StakeCurrency)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid RateLimit.Backend: %s", c.RateLimit.Backend)
	}
	switch c.Queue.Backend {
	case "inline", "celery":
	default:
		return fmt.Errorf("invalid Queue.Backend: %s", c.Queue.Backend)
	}
	switch c.Notify.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid Notify.Backend: %s", c.Notify.Backend)
	}
	if c.NeedsRedis() && c.Redis.Url == "" {
		return fmt.Errorf("missing Redis.Url, required by the configured backends")
	}
	if c.MCS.Enable && (c.MCS.ApiKey == "" || c.MCS.BucketName == "" || c.MCS.Network == "") {
		return fmt.Errorf("missing MCS settings: ApiKey, BucketName and Network are required when MCS is enabled")
	}
	return nil
}

func (c *MarketNode) NeedsRedis() bool {
	return c.RateLimit.Backend == "redis" || c.Queue.Backend == "celery" || c.Notify.Backend == "redis"
}

func (c *MarketNode) FeeRate() decimal.Decimal {
	return decimal.RequireFromString(c.Market.ProtocolFeeRate)
}

func (c *MarketNode) SlashRate() decimal.Decimal {
	return decimal.RequireFromString(c.Market.SlashRate)
}

func (c *MarketNode) MinimumStake() decimal.Decimal {
	return decimal.RequireFromString(c.Market.MinimumStake)
}
