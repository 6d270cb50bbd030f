package agent

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robocompute/go-robocompute/conf"
	"github.com/robocompute/go-robocompute/internal/api"
	"github.com/robocompute/go-robocompute/internal/client"
	"github.com/robocompute/go-robocompute/internal/computing"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/internal/ratelimit"
	"github.com/robocompute/go-robocompute/internal/store"
)

const adminToken = "admin-secret"

type fakeExecutor struct {
	mu   sync.Mutex
	jobs []Job
	out  *Output
	err  error
}

func (f *fakeExecutor) Run(ctx context.Context, job Job, started func(string) error) (*Output, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if err := started("ctr-1"); err != nil {
		return nil, err
	}
	return f.out, f.err
}

type fixture struct {
	ctx      context.Context
	market   *computing.Market
	client   *client.Client
	provider *client.Client
	node     *conf.ProviderNode
}

func newFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	s, err := store.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	hub := computing.NewHub()
	m, err := computing.NewMarket(s, computing.DefaultOptions(), hub)
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewServer(m, hub, ratelimit.NewMemory(1000, time.Minute), api.Config{AdminToken: adminToken}).Router())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	admin := client.New(srv.URL, adminToken)
	clientCreds, err := admin.CreateAccount(ctx, models.CreateAccountReq{Role: models.RoleClient, Name: "arm-controller"})
	require.NoError(t, err)
	provCreds, err := admin.CreateAccount(ctx, models.CreateAccountReq{Role: models.RoleProvider, Name: "rack-2", WalletAddress: "0xabc"})
	require.NoError(t, err)

	cl := client.New(srv.URL, clientCreds.ApiKey)
	prov := client.New(srv.URL, provCreds.ApiKey)
	_, err = cl.Deposit(ctx, models.DepositReq{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = prov.Deposit(ctx, models.DepositReq{Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	node := &conf.ProviderNode{
		Provider: conf.ProviderAuth{ProviderId: provCreds.ProviderId},
		Executor: conf.Executor{Backend: "docker", MaxConcurrent: 2, PollIntervalSeconds: 1, HeartbeatIntervalSeconds: 1},
		Resource: []conf.ResourceEntry{{Type: "gpu", Model: "RTX4090", MemoryGb: 24, CpuCores: 8, RamGb: 64, PricePerHour: "2"}},
	}
	return &fixture{ctx: ctx, market: m, client: cl, provider: prov, node: node}
}

func (f *fixture) ready(t *testing.T, a *Agent) {
	require.NoError(t, a.Heartbeat(f.ctx))
	_, err := f.provider.Stake(f.ctx, f.node.Provider.ProviderId, models.StakeReq{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	created, err := a.RegisterResources(f.ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	again, err := a.RegisterResources(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func (f *fixture) submit(t *testing.T) string {
	sub, err := f.client.SubmitTask(f.ctx, models.CreateTaskReq{
		Name:                 "grasp-policy",
		Type:                 models.TaskTypeGPU,
		ResourceRequirements: models.ResourceRequirements{GpuMemoryGb: 16},
		DockerImage:          "robocompute/grasp:1.2",
		Command:              []string{"python", "train.py"},
		MaxPricePerHour:      decimal.NewFromInt(4),
		TimeoutSeconds:       3600,
	})
	require.NoError(t, err)
	return sub.Id
}

func TestAgentCompletesTask(t *testing.T) {
	f := newFixture(t)
	exec := &fakeExecutor{out: &Output{
		Logs:          []string{"epoch 1", "epoch 2"},
		ResultHash:    resultHash([]string{"epoch 1", "epoch 2"}),
		ResourceUsage: map[string]float64{"wall_seconds": 1},
	}}
	a := New(f.provider, exec, f.node)
	f.ready(t, a)
	taskId := f.submit(t)

	n, err := a.Poll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a.Wait()
	assert.Equal(t, 0, a.Active())

	task, err := f.client.GetTask(f.ctx, taskId)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, "ctr-1", task.ContainerId)
	assert.Equal(t, 100, task.Progress)

	results, err := f.client.TaskResults(f.ctx, taskId)
	require.NoError(t, err)
	assert.Equal(t, exec.out.ResultHash, results.ResultHash)

	lines, err := f.client.TaskLogs(f.ctx, taskId, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, lines.Total)

	require.Len(t, exec.jobs, 1)
	assert.Equal(t, "robocompute/grasp:1.2", exec.jobs[0].Image)
	assert.Equal(t, time.Hour, exec.jobs[0].Timeout)

	n, err = a.Poll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAgentReportsFailure(t *testing.T) {
	f := newFixture(t)
	exec := &fakeExecutor{err: &ExecError{Message: "container exited with code 2", Logs: []string{"CUDA out of memory"}}}
	a := New(f.provider, exec, f.node)
	f.ready(t, a)
	taskId := f.submit(t)

	n, err := a.Poll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a.Wait()

	task, err := f.client.GetTask(f.ctx, taskId)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, "EXECUTION_ERROR", task.ErrorCode)
	assert.Equal(t, "container exited with code 2", task.ErrorMessage)

	lines, err := f.client.TaskLogs(f.ctx, taskId, 10)
	require.NoError(t, err)
	require.Equal(t, 1, lines.Total)
	assert.Equal(t, "CUDA out of memory", lines.Lines[0].Line)

	bal, err := f.client.Balance(f.ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(bal.UsdcBalance), bal.UsdcBalance.String())
}

func TestAgentFailsWhenExecutorCannotStart(t *testing.T) {
	f := newFixture(t)
	a := New(f.provider, startFailure{}, f.node)
	f.ready(t, a)
	taskId := f.submit(t)

	_, err := a.Poll(f.ctx)
	require.NoError(t, err)
	a.Wait()

	task, err := f.client.GetTask(f.ctx, taskId)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, "pull image robocompute/grasp:1.2: manifest unknown", task.ErrorMessage)
}

type startFailure struct{}

func (startFailure) Run(ctx context.Context, job Job, started func(string) error) (*Output, error) {
	return nil, errors.New("pull image " + job.Image + ": manifest unknown")
}

// blockingExecutor runs until its context is cancelled.
type blockingExecutor struct {
	running chan struct{}
}

func (b *blockingExecutor) Run(ctx context.Context, job Job, started func(string) error) (*Output, error) {
	if err := started("ctr-long"); err != nil {
		return nil, err
	}
	close(b.running)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAgentReportsTasksInterruptedByShutdown(t *testing.T) {
	f := newFixture(t)
	exec := &blockingExecutor{running: make(chan struct{})}
	a := New(f.provider, exec, f.node)
	f.ready(t, a)
	taskId := f.submit(t)

	ctx, cancel := context.WithCancel(f.ctx)
	n, err := a.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case <-exec.running:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	cancel()
	a.Wait()

	task, err := f.client.GetTask(f.ctx, taskId)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, "EXECUTION_ERROR", task.ErrorCode)
	assert.Equal(t, context.Canceled.Error(), task.ErrorMessage)

	bal, err := f.client.Balance(f.ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(bal.UsdcBalance), bal.UsdcBalance.String())
}

func TestHeartbeatReportsFreeResources(t *testing.T) {
	f := newFixture(t)
	a := New(f.provider, &fakeExecutor{}, f.node)
	a.running["task_x"] = models.TaskTypeGPU
	require.NoError(t, a.Heartbeat(f.ctx))

	st, err := f.provider.ProviderStatus(f.ctx, f.node.Provider.ProviderId)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOnline, st.Status)
	assert.Equal(t, map[string]int{"gpu": 0}, st.ResourcesAvailable)
}
