package initializer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robocompute/go-robocompute/internal/models"
)

const testConfig = `
[API]
Port = 8085

[Auth]
AdminToken = "admin"

[Market]
MinimumStake = "50"
ProtocolFeeRate = "0.02"

[Storage]
DataDir = "db"
`

func TestNodeLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(testConfig), 0600))

	n, err := ProjectInit(dir)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(n.Market.Options().MinimumStake))
	assert.Equal(t, "0.02", n.Market.Options().ProtocolFeeRate.String())
	n.Start()

	rec := httptest.NewRecorder()
	n.Server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	creds, err := n.Market.CreateAccount(models.CreateAccountReq{Role: models.RoleProvider, Name: "edge-1", WalletAddress: "0xabc"})
	require.NoError(t, err)
	_, err = n.Market.Deposit(creds.Id, models.DepositReq{Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	p, err := n.Market.RequestPayout(creds.ProviderId, models.PayoutReq{Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	n.inline.Wait()

	hist, err := n.Market.PayoutHistory(creds.ProviderId, 10)
	require.NoError(t, err)
	require.Len(t, hist.Payouts, 1)
	assert.Equal(t, p.Id, hist.Payouts[0].Id)
	assert.Equal(t, models.PayoutCompleted, hist.Payouts[0].Status)
	n.Close()

	reopened, err := NewNode(n.Config)
	require.NoError(t, err)
	defer reopened.Close()
	acct, err := reopened.Market.Authenticate(creds.ApiKey)
	require.NoError(t, err)
	assert.Equal(t, creds.Id, acct.Id)
}
