package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/robocompute/go-robocompute/internal/models"
)

func providerPath(providerId, rest string) string {
	return "/providers/" + providerId + rest
}

func (c *Client) CreateResource(ctx context.Context, providerId string, r models.CreateResourceReq) (*models.Resource, error) {
	var out models.Resource
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/resources"), nil, r, &out)
}

func (c *Client) ListResources(ctx context.Context, providerId, typ, status string) (*models.ResourceList, error) {
	v := url.Values{}
	if typ != "" {
		v.Set("type", typ)
	}
	if status != "" {
		v.Set("status", status)
	}
	var out models.ResourceList
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/resources"), v, nil, &out)
}

func (c *Client) GetResource(ctx context.Context, providerId, resourceId string) (*models.Resource, error) {
	var out models.Resource
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/resources/"+resourceId), nil, nil, &out)
}

func (c *Client) UpdateResource(ctx context.Context, providerId, resourceId string, upd models.UpdateResourceReq) (*models.Resource, error) {
	var out models.Resource
	return &out, c.do(ctx, http.MethodPatch, providerPath(providerId, "/resources/"+resourceId), nil, upd, &out)
}

func (c *Client) DeleteResource(ctx context.Context, providerId, resourceId string) (*models.Resource, error) {
	var out models.Resource
	return &out, c.do(ctx, http.MethodDelete, providerPath(providerId, "/resources/"+resourceId), nil, nil, &out)
}

func (c *Client) AvailableTasks(ctx context.Context, providerId string) (*models.AvailableTasks, error) {
	var out models.AvailableTasks
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/tasks/available"), nil, nil, &out)
}

func (c *Client) AcceptTask(ctx context.Context, providerId string, a models.AcceptTaskReq) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/tasks/accept"), nil, a, &out)
}

func (c *Client) StartTask(ctx context.Context, providerId, taskId string, s models.StartTaskReq) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/tasks/"+taskId+"/start"), nil, s, &out)
}

func (c *Client) UpdateProgress(ctx context.Context, providerId, taskId string, p models.ProgressReq) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodPatch, providerPath(providerId, "/tasks/"+taskId+"/progress"), nil, p, &out)
}

func (c *Client) AppendLogs(ctx context.Context, providerId, taskId string, lines []string) (*models.TaskLogs, error) {
	var out models.TaskLogs
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/tasks/"+taskId+"/logs"), nil, models.AppendLogsReq{Lines: lines}, &out)
}

func (c *Client) CompleteTask(ctx context.Context, providerId, taskId string, r models.CompleteTaskReq) (*models.TaskSettlement, error) {
	var out models.TaskSettlement
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/tasks/"+taskId+"/complete"), nil, r, &out)
}

func (c *Client) FailTask(ctx context.Context, providerId, taskId string, f models.FailTaskReq) (*models.Task, error) {
	var out models.Task
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/tasks/"+taskId+"/fail"), nil, f, &out)
}

func (c *Client) Earnings(ctx context.Context, providerId string, q models.DateRangeReq) (*models.EarningsSummary, error) {
	var out models.EarningsSummary
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/earnings"), dateRange(q), nil, &out)
}

func (c *Client) RequestPayout(ctx context.Context, providerId string, p models.PayoutReq) (*models.Payout, error) {
	var out models.Payout
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/payouts/request"), nil, p, &out)
}

func (c *Client) PayoutHistory(ctx context.Context, providerId string, limit int) (*models.PayoutList, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var out models.PayoutList
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/payouts/history"), v, nil, &out)
}

func (c *Client) PendingPayouts(ctx context.Context, providerId string) (*models.PayoutList, error) {
	var out models.PayoutList
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/payouts/pending"), nil, nil, &out)
}

func (c *Client) StakingStatus(ctx context.Context, providerId string) (*models.StakingStatus, error) {
	var out models.StakingStatus
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/staking"), nil, nil, &out)
}

func (c *Client) Stake(ctx context.Context, providerId string, s models.StakeReq) (*models.StakingStatus, error) {
	var out models.StakingStatus
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/staking/stake"), nil, s, &out)
}

func (c *Client) Unstake(ctx context.Context, providerId string, s models.StakeReq) (*models.StakingStatus, error) {
	var out models.StakingStatus
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/staking/unstake"), nil, s, &out)
}

func (c *Client) ProviderStatus(ctx context.Context, providerId string) (*models.ProviderNodeStatus, error) {
	var out models.ProviderNodeStatus
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/status"), nil, nil, &out)
}

func (c *Client) Heartbeat(ctx context.Context, providerId string, h models.HeartbeatReq) (*models.ProviderNodeStatus, error) {
	var out models.ProviderNodeStatus
	return &out, c.do(ctx, http.MethodPost, providerPath(providerId, "/heartbeat"), nil, h, &out)
}

func (c *Client) ProviderMetrics(ctx context.Context, providerId, period string) (*models.ProviderMetrics, error) {
	v := url.Values{}
	if period != "" {
		v.Set("period", period)
	}
	var out models.ProviderMetrics
	return &out, c.do(ctx, http.MethodGet, providerPath(providerId, "/metrics"), v, nil, &out)
}
