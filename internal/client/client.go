package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/wallet"
)

// Signer produces X-Wallet-Signature values. *wallet.LocalWallet implements it.
type Signer interface {
	WalletSign(ctx context.Context, addr string, msg []byte) (string, error)
}

// RateLimit is the quota reported with the last response.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

type Client struct {
	http    *req.Client
	baseURL string
	apiKey  string
	signer  Signer
	address string
	now     func() time.Time

	limitMu   sync.Mutex
	lastLimit RateLimit
}

// New returns a client for the API served at apiUrl, authenticating with apiKey.
func New(apiUrl, apiKey string) *Client {
	base := strings.TrimRight(apiUrl, "/")
	if !strings.HasSuffix(base, constants.ApiVersionPath) {
		base += constants.ApiVersionPath
	}
	c := req.C().
		SetTimeout(60*time.Second).
		SetCommonHeader("Content-Type", "application/json").
		SetUserAgent("robocompute-go")
	if apiKey != "" {
		c.SetCommonBearerAuthToken(apiKey)
	}
	return &Client{http: c, baseURL: base, apiKey: apiKey, now: time.Now}
}

// WithSigner signs every request with the key of address.
func (c *Client) WithSigner(s Signer, address string) *Client {
	c.signer = s
	c.address = address
	return c
}

func (c *Client) LastRateLimit() RateLimit {
	c.limitMu.Lock()
	defer c.limitMu.Unlock()
	return c.lastLimit
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var envelope models.ErrorEnvelope
	r := c.http.R().SetContext(ctx).SetErrorResult(&envelope)
	if out != nil {
		r.SetSuccessResult(out)
	}
	if body != nil {
		r.SetBody(body)
	}
	if len(query) > 0 {
		r.SetQueryString(query.Encode())
	}
	if c.signer != nil {
		ts := c.now().Unix()
		sig, err := c.signer.WalletSign(ctx, c.address, []byte(wallet.SignatureMessage(method, path, ts)))
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		r.SetHeader(constants.HeaderWalletSignature, sig)
		r.SetHeader(constants.HeaderTimestamp, strconv.FormatInt(ts, 10))
	}

	resp, err := r.Send(method, c.baseURL+path)
	if err != nil {
		return models.ErrNetwork(err.Error(), 0)
	}
	c.recordLimit(resp.Header)
	if resp.IsErrorState() {
		if envelope.Error != nil {
			return envelope.Error
		}
		return models.ErrNetwork(resp.Status, resp.StatusCode)
	}
	if !resp.IsSuccessState() {
		return models.ErrNetwork("unexpected response "+resp.Status, resp.StatusCode)
	}
	return nil
}

func (c *Client) recordLimit(h http.Header) {
	limit, err := strconv.Atoi(h.Get(constants.HeaderRateLimitLimit))
	if err != nil {
		return
	}
	remaining, _ := strconv.Atoi(h.Get(constants.HeaderRateLimitRemaining))
	reset, _ := strconv.ParseInt(h.Get(constants.HeaderRateLimitReset), 10, 64)
	c.limitMu.Lock()
	c.lastLimit = RateLimit{Limit: limit, Remaining: remaining, Reset: time.Unix(reset, 0)}
	c.limitMu.Unlock()
}

func dateRange(q models.DateRangeReq) url.Values {
	v := url.Values{}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	return v
}

func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var out models.Health
	return &out, c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
}

func (c *Client) SubmitTask(ctx context.Context, task models.CreateTaskReq) (*models.TaskSubmission, error) {
	var out models.TaskSubmission
	return &out, c.do(ctx, http.MethodPost, "/tasks", nil, task, &out)
}

func (c *Client) GetTask(ctx context.Context, taskId string) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodGet, "/tasks/"+taskId, nil, nil, &out)
}

func (c *Client) ListTasks(ctx context.Context, q models.ListTasksReq) (*models.TaskList, error) {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	var out models.TaskList
	return &out, c.do(ctx, http.MethodGet, "/tasks", v, nil, &out)
}

func (c *Client) UpdateTask(ctx context.Context, taskId string, upd models.UpdateTaskReq) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodPatch, "/tasks/"+taskId, nil, upd, &out)
}

func (c *Client) CancelTask(ctx context.Context, taskId string) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodDelete, "/tasks/"+taskId, nil, nil, &out)
}

func (c *Client) TaskLogs(ctx context.Context, taskId string, lines int) (*models.TaskLogs, error) {
	v := url.Values{}
	if lines > 0 {
		v.Set("lines", strconv.Itoa(lines))
	}
	var out models.TaskLogs
	return &out, c.do(ctx, http.MethodGet, "/tasks/"+taskId+"/logs", v, nil, &out)
}

func (c *Client) TaskMetrics(ctx context.Context, taskId string) (*models.TaskMetrics, error) {
	var out models.TaskMetrics
	return &out, c.do(ctx, http.MethodGet, "/tasks/"+taskId+"/metrics", nil, nil, &out)
}

func (c *Client) TaskResults(ctx context.Context, taskId string) (*models.TaskResults, error) {
	var out models.TaskResults
	return &out, c.do(ctx, http.MethodGet, "/tasks/"+taskId+"/results", nil, nil, &out)
}

func (c *Client) Balance(ctx context.Context) (*models.Balance, error) {
	var out models.Balance
	return &out, c.do(ctx, http.MethodGet, "/wallet/balance", nil, nil, &out)
}

func (c *Client) Deposit(ctx context.Context, d models.DepositReq) (*models.DepositResult, error) {
	var out models.DepositResult
	return &out, c.do(ctx, http.MethodPost, "/wallet/deposit", nil, d, &out)
}

func (c *Client) BillingHistory(ctx context.Context, q models.DateRangeReq) (*models.BillingHistory, error) {
	var out models.BillingHistory
	return &out, c.do(ctx, http.MethodGet, "/billing/history", dateRange(q), nil, &out)
}

func (c *Client) GetInvoice(ctx context.Context, invoiceId string) (*models.Invoice, error) {
	var out models.Invoice
	return &out, c.do(ctx, http.MethodGet, "/billing/invoices/"+invoiceId, nil, nil, &out)
}

func (c *Client) SetPaymentMethod(ctx context.Context, pm models.PaymentMethodReq) (*models.PaymentMethod, error) {
	var out models.PaymentMethod
	return &out, c.do(ctx, http.MethodPost, "/billing/payment-method", nil, pm, &out)
}

func (c *Client) SearchProviders(ctx context.Context, q models.ProviderSearch) (*models.ProviderSearchResult, error) {
	v := url.Values{}
	if q.GpuMemoryMin > 0 {
		v.Set("gpu_memory_min", strconv.Itoa(q.GpuMemoryMin))
	}
	if q.CpuCoresMin > 0 {
		v.Set("cpu_cores_min", strconv.Itoa(q.CpuCoresMin))
	}
	if q.MaxPrice.IsPositive() {
		v.Set("max_price", q.MaxPrice.String())
	}
	if q.Location != "" {
		v.Set("location", q.Location)
	}
	var out models.ProviderSearchResult
	return &out, c.do(ctx, http.MethodGet, "/providers/search", v, nil, &out)
}

func (c *Client) GetProvider(ctx context.Context, providerId string) (*models.ProviderView, error) {
	var out models.ProviderView
	return &out, c.do(ctx, http.MethodGet, "/providers/"+providerId, nil, nil, &out)
}

func (c *Client) CreateAccount(ctx context.Context, a models.CreateAccountReq) (*models.AccountCredentials, error) {
	var out models.AccountCredentials
	return &out, c.do(ctx, http.MethodPost, "/admin/accounts", nil, a, &out)
}

func (c *Client) ListAccounts(ctx context.Context) (*models.AccountList, error) {
	var out models.AccountList
	return &out, c.do(ctx, http.MethodGet, "/admin/accounts", nil, nil, &out)
}
