package conf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// ProviderNode is the provider agent config read from provider.toml
type ProviderNode struct {
	Provider ProviderAuth
	Executor Executor
	Resource []ResourceEntry
}

type ProviderAuth struct {
	ApiUrl        string
	ApiKey        string
	ProviderId    string
	WalletAddress string
	KeystoreDir   string
}

type Executor struct {
	Backend                  string
	Namespace                string
	MaxConcurrent            int
	PollIntervalSeconds      int
	HeartbeatIntervalSeconds int
}

type ResourceEntry struct {
	Type              string
	Model             string
	MemoryGb          int
	CpuCores          int
	RamGb             int
	StorageGb         int
	ComputeCapability string
	PricePerHour      string
}

func (r ResourceEntry) Price() decimal.Decimal {
	d, _ := decimal.NewFromString(r.PricePerHour)
	return d
}

func LoadProviderConfig(repoPath string) (*ProviderNode, error) {
	configFile := filepath.Join(repoPath, "provider.toml")

	var c ProviderNode
	metaData, err := toml.DecodeFile(configFile, &c)
	if err != nil {
		return nil, fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	requiredFields := [][]string{
		{"Provider", "ApiUrl"},
		{"Provider", "ApiKey"},
		{"Provider", "ProviderId"},
	}
	for _, v := range requiredFields {
		if !metaData.IsDefined(v...) {
			return nil, fmt.Errorf("required field not given: %s", strings.Join(v, "."))
		}
	}

	if c.Provider.KeystoreDir == "" {
		c.Provider.KeystoreDir = filepath.Join(repoPath, "keystore")
	}
	if c.Executor.Backend == "" {
		c.Executor.Backend = "docker"
	}
	if c.Executor.Namespace == "" {
		c.Executor.Namespace = "robocompute"
	}
	if c.Executor.MaxConcurrent <= 0 {
		c.Executor.MaxConcurrent = 1
	}
	if c.Executor.PollIntervalSeconds <= 0 {
		c.Executor.PollIntervalSeconds = 10
	}
	if c.Executor.HeartbeatIntervalSeconds <= 0 {
		c.Executor.HeartbeatIntervalSeconds = 30
	}
	if c.Executor.Backend != "docker" && c.Executor.Backend != "k8s" {
		return nil, fmt.Errorf("invalid Executor.Backend: %s", c.Executor.Backend)
	}
	for i, r := range c.Resource {
		if r.Type != "gpu" && r.Type != "cpu" {
			return nil, fmt.Errorf("resource %d: invalid Type %q", i, r.Type)
		}
		if !r.Price().IsPositive() {
			return nil, fmt.Errorf("resource %d: PricePerHour must be positive", i)
		}
	}
	return &c, nil
}
