package computing

import (
	"encoding/hex"
	"strings"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/metrics"
	"github.com/robocompute/go-robocompute/internal/models"
)

// assignedTask stages a task the provider is driving.
func (m *Market) assignedTask(tx *txn, providerId, taskId string) (*models.Task, error) {
	t, err := tx.task(taskId)
	if err != nil {
		return nil, err
	}
	if t.ProviderId != providerId {
		return nil, models.ErrForbidden("task is not assigned to this provider")
	}
	return t, nil
}

func (m *Market) AcceptTask(providerId string, req models.AcceptTaskReq) (*models.Task, error) {
	if req.TaskId == "" {
		return nil, models.ErrInvalidRequest("task_id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := tx.task(req.TaskId)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TaskPending {
		return nil, models.ErrTaskAlreadyAccepted(t.Id)
	}
	prov, ok := m.providers[providerId]
	if !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	if prov.Status != models.ProviderOnline {
		return nil, models.ErrProviderUnavailable(providerId)
	}
	if staked := m.stakedOf(providerId); staked.LessThan(m.opts.MinimumStake) {
		if pos := m.stakes[providerId]; pos != nil && !staked.Add(pos.SlashedTotal).LessThan(m.opts.MinimumStake) {
			return nil, models.ErrSlashingEvent(pos.SlashedTotal, m.opts.MinimumStake, staked, m.opts.StakeCurrency)
		}
		return nil, models.ErrInsufficientStake(m.opts.MinimumStake, staked, m.opts.StakeCurrency)
	}

	var chosen *models.Resource
	if req.ResourceId != "" {
		r, ok := m.resources[req.ResourceId]
		if !ok || r.ProviderId != providerId {
			return nil, models.ErrResourceNotFound(req.ResourceId)
		}
		if !Eligible(t, r, prov, m.stakedOf(providerId), m.opts.MinimumStake) {
			return nil, models.ErrResourceUnavailable(r.Id)
		}
		chosen = r
	} else if chosen = m.bestResource(t, prov); chosen == nil {
		return nil, models.ErrResourceUnavailable("")
	}

	res, _ := tx.resource(chosen.Id)
	now := m.now()
	res.Status = models.ResourceBusy
	res.ActiveTaskId = t.Id
	res.UpdatedAt = now

	t.Status = models.TaskAccepted
	t.ProviderId = providerId
	t.ResourceId = res.Id
	t.PricePerHour = res.Pricing.PerHour
	t.AcceptedAt = &now
	t.UpdatedAt = now
	tx.emitStatus(t, "accepted by "+providerId)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("task accepted: %s provider: %s resource: %s price: %s/h", t.Id, providerId, res.Id, t.PricePerHour)
	return t, nil
}

func (m *Market) StartTask(providerId, taskId string, req models.StartTaskReq) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := m.assignedTask(tx, providerId, taskId)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TaskAccepted {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	now := m.now()
	t.Status = models.TaskRunning
	t.ContainerId = req.ContainerId
	t.ResourceUsage = req.ResourceUsage
	t.StartedAt = &now
	t.UpdatedAt = now
	tx.emitStatus(t, "task started")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("task started: %s container: %s", taskId, req.ContainerId)
	return t, nil
}

func (m *Market) UpdateProgress(providerId, taskId string, req models.ProgressReq) (*models.Task, error) {
	if req.Progress < 0 || req.Progress > 100 {
		return nil, models.ErrInvalidRequest("progress must be between 0 and 100")
	}
	if req.Status != "" && req.Status != models.TaskRunning {
		return nil, models.ErrInvalidRequest("progress updates only accept status running")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := m.assignedTask(tx, providerId, taskId)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TaskRunning {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	if req.Progress < t.Progress {
		return nil, models.ErrInvalidRequest("progress cannot decrease")
	}
	now := m.now()
	t.Progress = req.Progress
	t.UpdatedAt = now

	samples := append(tx.taskSamples(taskId), models.MetricSample{Timestamp: now, Progress: req.Progress, Metrics: req.Metrics})
	if len(samples) > constants.MaxMetricSamples {
		samples = samples[len(samples)-constants.MaxMetricSamples:]
	}
	tx.samples[taskId] = samples
	tx.emit(models.TaskEvent{
		Type:     models.EventProgress,
		TaskId:   taskId,
		Status:   t.Status,
		Progress: t.Progress,
		Metrics:  req.Metrics,
	})
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *Market) appendLogs(tx *txn, t *models.Task, lines []string) {
	if len(lines) == 0 {
		return
	}
	now := m.now()
	all := tx.taskLogs(t.Id)
	for _, line := range lines {
		all = append(all, models.LogLine{Timestamp: now, Line: line})
		tx.emit(models.TaskEvent{
			Type:     models.EventLog,
			TaskId:   t.Id,
			Status:   t.Status,
			Progress: t.Progress,
			Message:  line,
		})
	}
	if len(all) > m.opts.MaxLogLines {
		all = all[len(all)-m.opts.MaxLogLines:]
	}
	tx.logs[t.Id] = all
}

func (m *Market) AppendLogs(providerId, taskId string, req models.AppendLogsReq) (*models.TaskLogs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := m.assignedTask(tx, providerId, taskId)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	m.appendLogs(tx, t, req.Lines)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return &models.TaskLogs{TaskId: taskId, Lines: []models.LogLine{}, Total: len(m.logs[taskId])}, nil
}

func (m *Market) CompleteTask(providerId, taskId string, req models.CompleteTaskReq) (*models.TaskSettlement, error) {
	if strings.TrimSpace(req.ResultHash) == "" {
		return nil, models.ErrInvalidRequest("result_hash is required")
	}
	if !validResultHash(req.ResultHash) {
		return nil, models.ErrVerificationFailed(taskId, "result_hash must be sha256:<64 hex digits>")
	}
	if req.ExecutionTimeSeconds < 0 {
		return nil, models.ErrInvalidRequest("execution_time_seconds must not be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := m.assignedTask(tx, providerId, taskId)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TaskRunning {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	seconds := req.ExecutionTimeSeconds
	if seconds == 0 {
		seconds = int64(m.now().Sub(*t.StartedAt).Seconds())
	}
	t.Result = &models.TaskResult{
		ResultHash:           req.ResultHash,
		ResultStorageUrl:     req.ResultStorageUrl,
		ExecutionTimeSeconds: seconds,
		ResourceUsage:        req.ResourceUsage,
	}
	if req.ResourceUsage != nil {
		t.ResourceUsage = req.ResourceUsage
	}
	t.Progress = 100
	settlement := m.chargeTask(tx, t, models.TaskCompleted, seconds)
	tx.emitStatus(t, "task completed")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	metrics.TasksFinished.WithLabelValues(string(t.Status)).Inc()
	metrics.SettledVolume.WithLabelValues(t.Currency).Add(t.Cost.InexactFloat64())
	logs.GetLogger().Infof("task completed: %s cost: %s %s earnings: %s", taskId, t.Cost, t.Currency, settlement.Earnings)
	return settlement, nil
}

func (m *Market) FailTask(providerId, taskId string, req models.FailTaskReq) (*models.Task, error) {
	if req.ErrorCode == "" {
		req.ErrorCode = "EXECUTION_ERROR"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := m.assignedTask(tx, providerId, taskId)
	if err != nil {
		return nil, err
	}
	if !t.Status.IsActive() {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	if req.Logs != "" {
		m.appendLogs(tx, t, strings.Split(strings.TrimRight(req.Logs, "\n"), "\n"))
	}
	m.faultTask(tx, t, models.TaskFailed, req.ErrorCode, req.ErrorMessage)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	metrics.TasksFinished.WithLabelValues(string(t.Status)).Inc()
	logs.GetLogger().Infof("task failed: %s provider: %s code: %s", taskId, providerId, req.ErrorCode)
	return t, nil
}

func validResultHash(h string) bool {
	digest, ok := strings.CutPrefix(h, "sha256:")
	if !ok || len(digest) != 64 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
