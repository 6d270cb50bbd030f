package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0600))
	return dir
}

func TestInitConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
[API]
Port = 8085

[Market]
MinimumStake = "100"

[Storage]
DataDir = "db"
`)
	require.NoError(t, InitConfig(dir))
	c := GetConfig()
	assert.Equal(t, 8085, c.API.Port)
	assert.Equal(t, filepath.Join(dir, "db"), c.Storage.DataDir)
	assert.Equal(t, "memory", c.RateLimit.Backend)
	assert.Equal(t, 100, c.RateLimit.Requests)
	assert.Equal(t, "inline", c.Queue.Backend)
	assert.Equal(t, "0.05", c.FeeRate().String())
	assert.Equal(t, "100", c.MinimumStake().String())
	assert.False(t, c.NeedsRedis())
}

func TestInitConfigRequiredFields(t *testing.T) {
	dir := writeConfig(t, `
[API]
Port = 8085

[Storage]
DataDir = "db"
`)
	err := InitConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Market")
}

func TestValidateBackends(t *testing.T) {
	dir := writeConfig(t, `
[API]
Port = 8085

[RateLimit]
Backend = "redis"

[Market]
MinimumStake = "100"

[Storage]
DataDir = "/tmp/rc"
`)
	err := InitConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis.Url")

	dir = writeConfig(t, `
[API]
Port = 8085

[Market]
MinimumStake = "lots"

[Storage]
DataDir = "/tmp/rc"
`)
	require.Error(t, InitConfig(dir))
}

func TestLoadProviderConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "provider.toml"), []byte(`
[Provider]
ApiUrl = "http://127.0.0.1:8085"
ApiKey = "rc_prov_live_x"
ProviderId = "prov_1"
WalletAddress = "0xdef"

[Executor]
Backend = "k8s"
MaxConcurrent = 2

[[Resource]]
Type = "gpu"
Model = "RTX 4090"
MemoryGb = 24
PricePerHour = "2.5"
`), 0600))

	c, err := LoadProviderConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "k8s", c.Executor.Backend)
	assert.Equal(t, 2, c.Executor.MaxConcurrent)
	assert.Equal(t, 10, c.Executor.PollIntervalSeconds)
	assert.Equal(t, filepath.Join(dir, "keystore"), c.Provider.KeystoreDir)
	require.Len(t, c.Resource, 1)
	assert.Equal(t, "2.5", c.Resource[0].Price().String())
}
