package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/computing"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/internal/ratelimit"
	"github.com/robocompute/go-robocompute/internal/store"
	"github.com/robocompute/go-robocompute/wallet"
)

const adminToken = "admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	t      *testing.T
	market *computing.Market
	hub    *computing.Hub
	router *gin.Engine
}

func newEnv(t *testing.T, cfg Config, limiter ratelimit.Limiter) *env {
	s, err := store.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hub := computing.NewHub()
	m, err := computing.NewMarket(s, computing.DefaultOptions(), hub)
	require.NoError(t, err)

	cfg.AdminToken = adminToken
	srv := NewServer(m, hub, limiter, cfg)
	return &env{t: t, market: m, hub: hub, router: srv.Router()}
}

func (e *env) call(method, path, key string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, constants.ApiVersionPath+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(constants.HeaderAuthorization, "Bearer "+key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code models.ErrorCode) *models.Error {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	env := decode[models.ErrorEnvelope](t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, code, env.Error.Code)
	return env.Error
}

func (e *env) account(role models.Role, name, walletAddr string) *models.AccountCredentials {
	e.t.Helper()
	w := e.call(http.MethodPost, "/admin/accounts", adminToken, models.CreateAccountReq{
		Role: role, Name: name, WalletAddress: walletAddr, Location: "eu-west",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*models.AccountCredentials](e.t, w)
}

// marketplace creates a funded client and an online, staked provider with one GPU.
func (e *env) marketplace() (client, prov *models.AccountCredentials, res *models.Resource) {
	e.t.Helper()
	client = e.account(models.RoleClient, "robot-7", "0xabc")
	prov = e.account(models.RoleProvider, "gpu-farm", "0xdef")
	base := "/providers/" + prov.ProviderId

	w := e.call(http.MethodPost, "/wallet/deposit", client.ApiKey, map[string]string{"amount": "100", "currency": "USDC"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	w = e.call(http.MethodPost, "/wallet/deposit", prov.ApiKey, map[string]string{"amount": "200"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	w = e.call(http.MethodPost, base+"/heartbeat", prov.ApiKey, models.HeartbeatReq{Status: models.ProviderOnline})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	w = e.call(http.MethodPost, base+"/staking/stake", prov.ApiKey, map[string]string{"amount": "100"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	w = e.call(http.MethodPost, base+"/resources", prov.ApiKey, map[string]interface{}{
		"resource_type":  "gpu",
		"specifications": map[string]interface{}{"model": "RTX 4090", "memory_gb": 24, "cpu_cores": 8, "ram_gb": 64, "storage_gb": 500},
		"pricing":        map[string]string{"per_hour": "2"},
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	res = decode[*models.Resource](e.t, w)
	return client, prov, res
}

func gpuTask(maxPrice string) map[string]interface{} {
	return map[string]interface{}{
		"name":                  "train",
		"type":                  "gpu",
		"resource_requirements": map[string]int{"gpu_memory_gb": 16, "cpu_cores": 4},
		"docker_image":          "pytorch/pytorch:latest",
		"command":               []string{"python", "train.py"},
		"max_price_per_hour":    maxPrice,
		"timeout_seconds":       3600,
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestDocumentedRoutesAreRegistered(t *testing.T) {
	e := newEnv(t, Config{}, nil)
	registered := map[string]bool{}
	for _, r := range e.router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	v1 := constants.ApiVersionPath
	want := []string{
		"POST /tasks", "GET /tasks", "GET /tasks/:id", "PATCH /tasks/:id", "DELETE /tasks/:id",
		"GET /tasks/:id/stream", "GET /tasks/:id/logs", "GET /tasks/:id/metrics", "GET /tasks/:id/results",
		"GET /wallet/balance", "POST /wallet/deposit", "GET /billing/history", "GET /billing/invoices/:id",
		"POST /billing/payment-method", "GET /providers/search", "GET /providers/:id",
		"POST /providers/:id/resources", "GET /providers/:id/resources", "GET /providers/:id/resources/:rid",
		"PATCH /providers/:id/resources/:rid", "DELETE /providers/:id/resources/:rid",
		"GET /providers/:id/tasks/available", "POST /providers/:id/tasks/accept",
		"POST /providers/:id/tasks/:tid/start", "PATCH /providers/:id/tasks/:tid/progress",
		"POST /providers/:id/tasks/:tid/logs", "POST /providers/:id/tasks/:tid/complete",
		"POST /providers/:id/tasks/:tid/fail", "GET /providers/:id/earnings",
		"POST /providers/:id/payouts/request", "GET /providers/:id/payouts/history",
		"GET /providers/:id/payouts/pending", "GET /providers/:id/staking",
		"POST /providers/:id/staking/stake", "POST /providers/:id/staking/unstake",
		"GET /providers/:id/status", "POST /providers/:id/heartbeat", "GET /providers/:id/metrics",
		"POST /admin/accounts", "GET /admin/accounts",
	}
	for _, route := range want {
		parts := strings.SplitN(route, " ", 2)
		assert.True(t, registered[parts[0]+" "+v1+parts[1]], "route %s not registered", route)
	}
	assert.True(t, registered["GET /health"])
	assert.True(t, registered["GET /metrics"])
}

func TestEveryErrorCodeHasStatus(t *testing.T) {
	cases := map[models.ErrorCode]int{
		models.CodeInsufficientFunds:      http.StatusPaymentRequired,
		models.CodeTaskNotFound:           http.StatusNotFound,
		models.CodeProviderUnavailable:    http.StatusServiceUnavailable,
		models.CodeAuthenticationFailed:   http.StatusUnauthorized,
		models.CodeRateLimitExceeded:      http.StatusTooManyRequests,
		models.CodeInvalidRequirements:    http.StatusBadRequest,
		models.CodeWalletSignatureInvalid: http.StatusUnauthorized,
		models.CodeInsufficientStake:      http.StatusPaymentRequired,
		models.CodeResourceUnavailable:    http.StatusServiceUnavailable,
		models.CodeTaskAlreadyAccepted:    http.StatusConflict,
		models.CodeInvalidTaskState:       http.StatusConflict,
		models.CodeForbidden:              http.StatusForbidden,
		models.CodeSlashingEvent:          http.StatusConflict,
		models.CodeVerificationFailed:     http.StatusUnprocessableEntity,
		models.CodeInternalError:          http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, models.NewError(code, "x", nil).HTTPStatus(), code)
	}
}

func TestAuthentication(t *testing.T) {
	e := newEnv(t, Config{}, nil)

	requireError(t, e.call(http.MethodGet, "/tasks", "", nil), http.StatusUnauthorized, models.CodeAuthenticationFailed)
	requireError(t, e.call(http.MethodGet, "/tasks", "rc_live_nope", nil), http.StatusUnauthorized, models.CodeAuthenticationFailed)
	requireError(t, e.call(http.MethodPost, "/admin/accounts", "wrong", models.CreateAccountReq{}), http.StatusUnauthorized, models.CodeAuthenticationFailed)
	requireError(t, e.call(http.MethodGet, "/no/such/route", "", nil), http.StatusNotFound, models.CodeNotFound)

	w := e.call(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	client := e.account(models.RoleClient, "robot", "")
	assert.True(t, strings.HasPrefix(client.ApiKey, constants.ApiKeyPrefixClient))
	w = e.call(http.MethodGet, "/tasks", client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.TaskList](t, w)
	assert.Equal(t, 0, list.Total)

	w = e.call(http.MethodGet, "/admin/accounts", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.AccountList](t, w).Total)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t, Config{}, nil)
	client, prov, res := e.marketplace()
	base := "/providers/" + prov.ProviderId

	w := e.call(http.MethodPost, "/tasks", client.ApiKey, gpuTask("4"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode[models.TaskSubmission](t, w)
	assert.Equal(t, models.TaskPending, sub.Status)
	assertAmount(t, "4", sub.EscrowAmount)
	assert.Equal(t, "immediate", sub.EstimatedWait)
	taskId := sub.Id

	w = e.call(http.MethodGet, base+"/tasks/available", prov.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	avail := decode[models.AvailableTasks](t, w)
	require.Len(t, avail.Tasks, 1)

	w = e.call(http.MethodPost, base+"/tasks/accept", prov.ApiKey, models.AcceptTaskReq{TaskId: taskId})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, res.Id, decode[models.Task](t, w).ResourceId)

	requireError(t, e.call(http.MethodPost, base+"/tasks/accept", prov.ApiKey, models.AcceptTaskReq{TaskId: taskId}),
		http.StatusConflict, models.CodeTaskAlreadyAccepted)

	w = e.call(http.MethodPost, base+"/tasks/"+taskId+"/start", prov.ApiKey, models.StartTaskReq{ContainerId: "c-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.call(http.MethodPatch, base+"/tasks/"+taskId+"/progress", prov.ApiKey, models.ProgressReq{Progress: 40, Metrics: map[string]float64{"gpu_util": 0.9}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	requireError(t, e.call(http.MethodPatch, base+"/tasks/"+taskId+"/progress", prov.ApiKey, models.ProgressReq{Progress: 10}),
		http.StatusBadRequest, models.CodeInvalidRequest)

	w = e.call(http.MethodPost, base+"/tasks/"+taskId+"/logs", prov.ApiKey, models.AppendLogsReq{Lines: []string{"epoch 1", "epoch 2"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.call(http.MethodGet, "/tasks/"+taskId+"/logs?lines=1", client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[models.TaskLogs](t, w)
	require.Len(t, logs.Lines, 1)
	assert.Equal(t, "epoch 2", logs.Lines[0].Line)

	w = e.call(http.MethodGet, "/tasks/"+taskId+"/metrics", client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 40, decode[models.TaskMetrics](t, w).Progress)

	requireError(t, e.call(http.MethodGet, "/tasks/"+taskId+"/results", client.ApiKey, nil), http.StatusConflict, models.CodeInvalidTaskState)

	w = e.call(http.MethodPost, base+"/tasks/"+taskId+"/complete", prov.ApiKey, models.CompleteTaskReq{
		ResultHash: "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", ResultStorageUrl: "ipfs://bafy", ExecutionTimeSeconds: 1800,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	settle := decode[models.TaskSettlement](t, w)
	assertAmount(t, "0.95", settle.Earnings)
	assert.Equal(t, models.TaskCompleted, settle.Status)

	w = e.call(http.MethodGet, "/tasks/"+taskId+"/results", client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode[models.TaskResults](t, w)
	assert.Equal(t, "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", results.ResultHash)
	assertAmount(t, "1", results.Cost)

	w = e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil)
	assertAmount(t, "99", decode[models.Balance](t, w).UsdcBalance)
	w = e.call(http.MethodGet, "/wallet/balance", prov.ApiKey, nil)
	assertAmount(t, "100.95", decode[models.Balance](t, w).UsdcBalance)

	w = e.call(http.MethodGet, "/billing/history", client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[models.BillingHistory](t, w).Records)

	w = e.call(http.MethodGet, "/tasks/"+taskId, client.ApiKey, nil)
	task := decode[models.Task](t, w)
	require.NotEmpty(t, task.InvoiceId)
	w = e.call(http.MethodGet, "/billing/invoices/"+task.InvoiceId, client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assertAmount(t, "1", decode[models.Invoice](t, w).Total)
	requireError(t, e.call(http.MethodGet, "/billing/invoices/"+task.InvoiceId, prov.ApiKey, nil), http.StatusNotFound, models.CodeNotFound)

	w = e.call(http.MethodGet, "/providers/search?gpu_memory_min=16&max_price=3", client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ProviderSearchResult](t, w).Total)
	w = e.call(http.MethodGet, "/providers/search?max_price=1", client.ApiKey, nil)
	assert.Equal(t, 0, decode[models.ProviderSearchResult](t, w).Total)
	requireError(t, e.call(http.MethodGet, "/providers/search?max_price=cheap", client.ApiKey, nil), http.StatusBadRequest, models.CodeInvalidRequest)

	w = e.call(http.MethodGet, "/providers/"+prov.ProviderId, client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ProviderView](t, w).CompletedTasks)

	w = e.call(http.MethodGet, base+"/metrics?period=7d", prov.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ProviderMetrics](t, w).TasksCompleted)
}

func TestClientErrors(t *testing.T) {
	e := newEnv(t, Config{}, nil)
	client, _, _ := e.marketplace()

	requireError(t, e.call(http.MethodPost, "/tasks", client.ApiKey, "not an object"), http.StatusBadRequest, models.CodeInvalidRequest)

	body := gpuTask("4")
	body["resource_requirements"] = map[string]int{"cpu_cores": 4}
	requireError(t, e.call(http.MethodPost, "/tasks", client.ApiKey, body), http.StatusBadRequest, models.CodeInvalidRequirements)

	rich := gpuTask("1000")
	rich["timeout_seconds"] = 7200
	errBody := requireError(t, e.call(http.MethodPost, "/tasks", client.ApiKey, rich), http.StatusPaymentRequired, models.CodeInsufficientFunds)
	assert.Equal(t, "2000", errBody.Required())
	assert.Equal(t, "100", errBody.Available())

	requireError(t, e.call(http.MethodGet, "/tasks/task_missing", client.ApiKey, nil), http.StatusNotFound, models.CodeTaskNotFound)

	w := e.call(http.MethodPost, "/tasks", client.ApiKey, gpuTask("4"))
	require.Equal(t, http.StatusCreated, w.Code)
	taskId := decode[models.TaskSubmission](t, w).Id

	w = e.call(http.MethodPatch, "/tasks/"+taskId, client.ApiKey, map[string]string{"max_price_per_hour": "3"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assertAmount(t, "3", decode[models.Task](t, w).EscrowAmount)

	w = e.call(http.MethodDelete, "/tasks/"+taskId, client.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TaskCancelled, decode[models.Task](t, w).Status)
	requireError(t, e.call(http.MethodDelete, "/tasks/"+taskId, client.ApiKey, nil), http.StatusConflict, models.CodeInvalidTaskState)

	w = e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil)
	assertAmount(t, "100", decode[models.Balance](t, w).UsdcBalance)

	w = e.call(http.MethodPost, "/billing/payment-method", client.ApiKey, map[string]interface{}{
		"preferred_currency": "USDC", "auto_topup": true, "topup_threshold": "10", "topup_amount": "50",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.PaymentMethod](t, w).AutoTopup)
}

func TestProviderRoutesRequireOwnKey(t *testing.T) {
	e := newEnv(t, Config{}, nil)
	client, prov, res := e.marketplace()
	other := e.account(models.RoleProvider, "other-farm", "0x123")
	path := "/providers/" + prov.ProviderId + "/resources/" + res.Id

	requireError(t, e.call(http.MethodGet, path, client.ApiKey, nil), http.StatusForbidden, models.CodeForbidden)
	requireError(t, e.call(http.MethodGet, path, other.ApiKey, nil), http.StatusForbidden, models.CodeForbidden)

	w := e.call(http.MethodGet, path, prov.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, res.Id, decode[models.Resource](t, w).Id)

	w = e.call(http.MethodGet, "/providers/"+prov.ProviderId+"/staking", prov.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[models.StakingStatus](t, w)
	assert.True(t, st.Eligible)
	assertAmount(t, "100", st.StakedAmount)
	assert.Contains(t, w.Body.String(), `"slash_events":[]`)

	requireError(t, e.call(http.MethodPost, "/providers/"+prov.ProviderId+"/staking/unstake", prov.ApiKey, map[string]string{"amount": "500"}),
		http.StatusPaymentRequired, models.CodeInsufficientStake)

	w = e.call(http.MethodPost, "/providers/"+prov.ProviderId+"/payouts/request", prov.ApiKey, map[string]string{"amount": "50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PayoutPending, decode[models.Payout](t, w).Status)

	w = e.call(http.MethodGet, "/providers/"+prov.ProviderId+"/payouts/pending", prov.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[models.PayoutList](t, w)
	assert.Equal(t, 1, pending.Total)
	assertAmount(t, "50", pending.Amount["USDC"])

	w = e.call(http.MethodGet, "/providers/"+prov.ProviderId+"/status", prov.ApiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ProviderOnline, decode[models.ProviderNodeStatus](t, w).Status)
}

func TestRateLimitHeaders(t *testing.T) {
	e := newEnv(t, Config{}, ratelimit.NewMemory(2, time.Minute))
	client := e.account(models.RoleClient, "robot", "")

	for _, remaining := range []string{"1", "0"} {
		w := e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get(constants.HeaderRateLimitLimit))
		assert.Equal(t, remaining, w.Header().Get(constants.HeaderRateLimitRemaining))
		assert.NotEmpty(t, w.Header().Get(constants.HeaderRateLimitReset))
	}

	w := e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil)
	errBody := requireError(t, w, http.StatusTooManyRequests, models.CodeRateLimitExceeded)
	assert.Equal(t, strconv.Itoa(errBody.RetryAfter()), w.Header().Get(constants.HeaderRetryAfter))
	assert.Greater(t, errBody.RetryAfter(), 0)
}

func TestWalletSignatureSecp256k1(t *testing.T) {
	now := time.Unix(1709294400, 0)
	e := newEnv(t, Config{RequireSignature: true, TimestampSkew: 5 * time.Minute, Now: func() time.Time { return now }}, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	client := e.account(models.RoleClient, "robot", addr)

	sign := func(method, endpoint string, ts int64) string {
		msg := wallet.SignatureMessage(method, endpoint, ts)
		sig, err := crypto.Sign(crypto.Keccak256Hash([]byte(msg)).Bytes(), key)
		require.NoError(t, err)
		return wallet.EncodeSignature(addr, sig)
	}
	ts := now.Unix()
	tsHeader := strconv.FormatInt(ts, 10)

	requireError(t, e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil), http.StatusUnauthorized, models.CodeWalletSignatureInvalid)

	w := e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil,
		constants.HeaderWalletSignature, sign("GET", "/wallet/balance", ts), constants.HeaderTimestamp, tsHeader)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	requireError(t, e.call(http.MethodGet, "/tasks", client.ApiKey, nil,
		constants.HeaderWalletSignature, sign("GET", "/wallet/balance", ts), constants.HeaderTimestamp, tsHeader),
		http.StatusUnauthorized, models.CodeWalletSignatureInvalid)

	stale := ts - 3600
	requireError(t, e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil,
		constants.HeaderWalletSignature, sign("GET", "/wallet/balance", stale), constants.HeaderTimestamp, strconv.FormatInt(stale, 10)),
		http.StatusUnauthorized, models.CodeWalletSignatureInvalid)
}

func TestWalletSignatureEd25519(t *testing.T) {
	now := time.Unix(1709294400, 0)
	e := newEnv(t, Config{TimestampSkew: 5 * time.Minute, Now: func() time.Time { return now }}, nil)

	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	addr := pk.PublicKey().String()
	client := e.account(models.RoleClient, "robot", addr)
	ts := now.Unix()

	sig, err := wallet.SignEd25519(pk.String(), []byte(wallet.SignatureMessage("GET", "/tasks", ts)))
	require.NoError(t, err)
	w := e.call(http.MethodGet, "/tasks", client.ApiKey, nil,
		constants.HeaderWalletSignature, wallet.EncodeSignature(addr, sig), constants.HeaderTimestamp, strconv.FormatInt(ts, 10))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	requireError(t, e.call(http.MethodGet, "/wallet/balance", client.ApiKey, nil,
		constants.HeaderWalletSignature, wallet.EncodeSignature(addr, sig), constants.HeaderTimestamp, strconv.FormatInt(ts, 10)),
		http.StatusUnauthorized, models.CodeWalletSignatureInvalid)

	// unsigned requests pass when signatures are optional
	w = e.call(http.MethodGet, "/tasks", client.ApiKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamSnapshotEventsAndTerminalClose(t *testing.T) {
	e := newEnv(t, Config{}, nil)
	client, prov, _ := e.marketplace()

	w := e.call(http.MethodPost, "/tasks", client.ApiKey, gpuTask("4"))
	require.Equal(t, http.StatusCreated, w.Code)
	taskId := decode[models.TaskSubmission](t, w).Id

	ts := httptest.NewServer(e.router)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + constants.ApiVersionPath + "/tasks/" + taskId + "/stream"
	header := http.Header{}
	header.Set(constants.HeaderAuthorization, "Bearer "+client.ApiKey)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	require.NoError(t, conn.WriteJSON(models.StreamRequest{Action: "subscribe", TaskId: taskId}))
	var snap models.TaskEvent
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, models.EventSnapshot, snap.Type)
	assert.Equal(t, models.TaskPending, snap.Status)

	require.Eventually(t, func() bool { return e.hub.Subscribers(taskId) == 1 }, time.Second, 10*time.Millisecond)

	_, err = e.market.AcceptTask(prov.ProviderId, models.AcceptTaskReq{TaskId: taskId})
	require.NoError(t, err)
	var evt models.TaskEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, models.EventStatus, evt.Type)
	assert.Equal(t, models.TaskAccepted, evt.Status)

	_, err = e.market.FailTask(prov.ProviderId, taskId, models.FailTaskReq{ErrorMessage: "oom"})
	require.NoError(t, err)
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, models.TaskFailed, evt.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamRejectsForeignTask(t *testing.T) {
	e := newEnv(t, Config{}, nil)
	client, _, _ := e.marketplace()
	stranger := e.account(models.RoleClient, "stranger", "")

	w := e.call(http.MethodPost, "/tasks", client.ApiKey, gpuTask("4"))
	taskId := decode[models.TaskSubmission](t, w).Id

	requireError(t, e.call(http.MethodGet, "/tasks/"+taskId+"/stream", stranger.ApiKey, nil), http.StatusNotFound, models.CodeTaskNotFound)
}
