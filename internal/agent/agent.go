package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/filswan/go-swan-lib/logs"

	"github.com/robocompute/go-robocompute/conf"
	"github.com/robocompute/go-robocompute/internal/models"
)

const (
	logChunk      = 100
	reportTimeout = 30 * time.Second
)

// API is the part of the marketplace client the agent talks to.
type API interface {
	CreateResource(ctx context.Context, providerId string, r models.CreateResourceReq) (*models.Resource, error)
	ListResources(ctx context.Context, providerId, typ, status string) (*models.ResourceList, error)
	Heartbeat(ctx context.Context, providerId string, h models.HeartbeatReq) (*models.ProviderNodeStatus, error)
	AvailableTasks(ctx context.Context, providerId string) (*models.AvailableTasks, error)
	AcceptTask(ctx context.Context, providerId string, a models.AcceptTaskReq) (*models.Task, error)
	StartTask(ctx context.Context, providerId, taskId string, s models.StartTaskReq) (*models.Task, error)
	UpdateProgress(ctx context.Context, providerId, taskId string, p models.ProgressReq) (*models.Task, error)
	AppendLogs(ctx context.Context, providerId, taskId string, lines []string) (*models.TaskLogs, error)
	CompleteTask(ctx context.Context, providerId, taskId string, r models.CompleteTaskReq) (*models.TaskSettlement, error)
	FailTask(ctx context.Context, providerId, taskId string, f models.FailTaskReq) (*models.Task, error)
}

// Agent runs on a provider host: it keeps the provider online, takes
// pending tasks it can serve and drives them through the executor.
type Agent struct {
	api        API
	exec       Executor
	providerId string
	resources  []conf.ResourceEntry

	maxConcurrent     int
	pollInterval      time.Duration
	heartbeatInterval time.Duration

	mu      sync.Mutex
	running map[string]models.TaskType
	wg      sync.WaitGroup
}

func New(api API, exec Executor, node *conf.ProviderNode) *Agent {
	return &Agent{
		api:               api,
		exec:              exec,
		providerId:        node.Provider.ProviderId,
		resources:         node.Resource,
		maxConcurrent:     node.Executor.MaxConcurrent,
		pollInterval:      time.Duration(node.Executor.PollIntervalSeconds) * time.Second,
		heartbeatInterval: time.Duration(node.Executor.HeartbeatIntervalSeconds) * time.Second,
		running:           make(map[string]models.TaskType),
	}
}

// RegisterResources creates the configured resources that are not listed yet.
// A resource is identified by its type and model.
func (a *Agent) RegisterResources(ctx context.Context) ([]*models.Resource, error) {
	existing, err := a.api.ListResources(ctx, a.providerId, "", "")
	if err != nil {
		return nil, err
	}
	var created []*models.Resource
	for _, entry := range a.resources {
		if hasResource(existing.Resources, entry) {
			continue
		}
		r, err := a.api.CreateResource(ctx, a.providerId, models.CreateResourceReq{
			ResourceType: models.TaskType(entry.Type),
			Specifications: models.ResourceSpecifications{
				Model:             entry.Model,
				MemoryGb:          entry.MemoryGb,
				CpuCores:          entry.CpuCores,
				RamGb:             entry.RamGb,
				StorageGb:         entry.StorageGb,
				ComputeCapability: entry.ComputeCapability,
			},
			Pricing: models.ResourcePricing{PerHour: entry.Price()},
		})
		if err != nil {
			return created, err
		}
		logs.GetLogger().Infof("registered resource: %s type: %s model: %s", r.Id, r.ResourceType, r.Specifications.Model)
		created = append(created, r)
	}
	return created, nil
}

func hasResource(list []*models.Resource, entry conf.ResourceEntry) bool {
	for _, r := range list {
		if string(r.ResourceType) == entry.Type && r.Specifications.Model == entry.Model {
			return true
		}
	}
	return false
}

func (a *Agent) Heartbeat(ctx context.Context) error {
	a.mu.Lock()
	free := make(map[string]int)
	for _, r := range a.resources {
		free[r.Type]++
	}
	for _, typ := range a.running {
		if free[string(typ)] > 0 {
			free[string(typ)]--
		}
	}
	active := len(a.running)
	a.mu.Unlock()

	_, err := a.api.Heartbeat(ctx, a.providerId, models.HeartbeatReq{
		Status:             models.ProviderOnline,
		ActiveTasks:        active,
		ResourcesAvailable: free,
	})
	return err
}

func (a *Agent) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.running)
}

// Poll accepts as many available tasks as there are free slots and
// starts executing them. It returns the number of tasks accepted.
func (a *Agent) Poll(ctx context.Context) (int, error) {
	free := a.maxConcurrent - a.Active()
	if free <= 0 {
		return 0, nil
	}
	avail, err := a.api.AvailableTasks(ctx, a.providerId)
	if err != nil {
		return 0, err
	}
	accepted := 0
	for _, t := range avail.Tasks {
		if accepted == free {
			break
		}
		task, err := a.api.AcceptTask(ctx, a.providerId, models.AcceptTaskReq{TaskId: t.Id})
		if err != nil {
			if models.HasCode(err, models.CodeTaskAlreadyAccepted) || models.HasCode(err, models.CodeResourceUnavailable) {
				continue
			}
			return accepted, err
		}
		accepted++
		a.mu.Lock()
		a.running[task.Id] = task.Type
		a.mu.Unlock()
		a.wg.Add(1)
		go func(task *models.Task) {
			defer a.wg.Done()
			defer func() {
				a.mu.Lock()
				delete(a.running, task.Id)
				a.mu.Unlock()
			}()
			a.execute(ctx, task)
		}(task)
	}
	return accepted, nil
}

// Wait blocks until every running task has been reported.
func (a *Agent) Wait() {
	a.wg.Wait()
}

// Run registers resources and loops heartbeats and polls until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Heartbeat(ctx); err != nil {
		return err
	}
	if _, err := a.RegisterResources(ctx); err != nil {
		return err
	}
	logs.GetLogger().Infof("provider agent started, provider: %s max concurrent: %d", a.providerId, a.maxConcurrent)

	heartbeat := time.NewTicker(a.heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(a.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Wait()
			return nil
		case <-heartbeat.C:
			if err := a.Heartbeat(ctx); err != nil {
				logs.GetLogger().Errorf("heartbeat failed, error: %v", err)
			}
		case <-poll.C:
			if n, err := a.Poll(ctx); err != nil {
				logs.GetLogger().Errorf("poll tasks failed, error: %v", err)
			} else if n > 0 {
				logs.GetLogger().Infof("accepted %d task(s)", n)
			}
		}
	}
}

func (a *Agent) execute(ctx context.Context, task *models.Task) {
	job := jobOf(task)
	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	startedAt := time.Now()
	out, err := a.exec.Run(runCtx, job, func(containerId string) error {
		_, err := a.api.StartTask(ctx, a.providerId, task.Id, models.StartTaskReq{ContainerId: containerId})
		return err
	})

	// outcomes are still reported when the agent is shutting down
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	ctx = reportCtx

	if err != nil {
		a.fail(ctx, task.Id, err)
		return
	}

	if err := a.appendLogs(ctx, task.Id, out.Logs); err != nil {
		logs.GetLogger().Errorf("upload logs of task %s failed, error: %v", task.Id, err)
	}
	if _, err := a.api.UpdateProgress(ctx, a.providerId, task.Id, models.ProgressReq{Progress: 100}); err != nil {
		logs.GetLogger().Errorf("update progress of task %s failed, error: %v", task.Id, err)
	}
	settle, err := a.api.CompleteTask(ctx, a.providerId, task.Id, models.CompleteTaskReq{
		ResultHash:           out.ResultHash,
		ExecutionTimeSeconds: int64(time.Since(startedAt).Seconds()),
		ResourceUsage:        out.ResourceUsage,
	})
	if err != nil {
		logs.GetLogger().Errorf("complete task %s failed, error: %v", task.Id, err)
		return
	}
	logs.GetLogger().Infof("task %s completed, earnings: %s", task.Id, settle.Earnings)
}

func (a *Agent) appendLogs(ctx context.Context, taskId string, lines []string) error {
	for len(lines) > 0 {
		n := len(lines)
		if n > logChunk {
			n = logChunk
		}
		if _, err := a.api.AppendLogs(ctx, a.providerId, taskId, lines[:n]); err != nil {
			return err
		}
		lines = lines[n:]
	}
	return nil
}

func (a *Agent) fail(ctx context.Context, taskId string, cause error) {
	req := models.FailTaskReq{ErrorCode: "EXECUTION_ERROR", ErrorMessage: cause.Error()}
	var execErr *ExecError
	if errors.As(cause, &execErr) {
		req.Logs = strings.Join(execErr.Logs, "\n")
	}
	if _, err := a.api.FailTask(ctx, a.providerId, taskId, req); err != nil {
		logs.GetLogger().Errorf("report failure of task %s failed, error: %v", taskId, err)
		return
	}
	logs.GetLogger().Warnf("task %s failed: %v", taskId, cause)
}
