package computing

import (
	"sort"
	"strings"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/metrics"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/shopspring/decimal"
)

// ValidateRequirements rejects requirements no resource type could satisfy.
func ValidateRequirements(typ models.TaskType, req models.ResourceRequirements) error {
	if req.CpuCores < 0 || req.GpuMemoryGb < 0 || req.RamGb < 0 || req.StorageGb < 0 {
		return models.ErrInvalidRequirements("resource requirements must not be negative", req)
	}
	switch typ {
	case models.TaskTypeGPU:
		if req.GpuMemoryGb == 0 {
			return models.ErrInvalidRequirements("gpu tasks require gpu_memory_gb", req)
		}
	case models.TaskTypeCPU:
		if req.GpuMemoryGb > 0 {
			return models.ErrInvalidRequirements("cpu tasks cannot require gpu_memory_gb", req)
		}
	}
	return nil
}

func validateTaskReq(req *models.CreateTaskReq) error {
	if strings.TrimSpace(req.Name) == "" {
		return models.ErrInvalidRequest("name is required")
	}
	if !req.Type.Valid() {
		return models.ErrInvalidRequest("type must be gpu or cpu")
	}
	if strings.TrimSpace(req.DockerImage) == "" {
		return models.ErrInvalidRequest("docker_image is required")
	}
	if !req.MaxPricePerHour.IsPositive() {
		return models.ErrInvalidRequest("max_price_per_hour must be positive")
	}
	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = constants.DefaultTaskTimeoutSeconds
	}
	if req.TimeoutSeconds < 0 {
		return models.ErrInvalidRequest("timeout_seconds must be positive")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return models.ErrInvalidRequest("priority must be high, normal or low")
	}
	return ValidateRequirements(req.Type, req.ResourceRequirements)
}

func (m *Market) SubmitTask(accountId string, req models.CreateTaskReq) (*models.TaskSubmission, error) {
	if err := validateTaskReq(&req); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	acct, ok := tx.account(accountId)
	if !ok {
		return nil, models.ErrAuthentication("unknown account")
	}
	currency := acct.PaymentMethod.PreferredCurrency
	if currency == "" {
		currency = constants.CurrencyUSDC
	}
	now := m.now()
	t := &models.Task{
		Id:                   newId("task_"),
		AccountId:            accountId,
		Name:                 req.Name,
		Type:                 req.Type,
		ResourceRequirements: req.ResourceRequirements,
		DockerImage:          req.DockerImage,
		Command:              req.Command,
		MaxPricePerHour:      req.MaxPricePerHour,
		TimeoutSeconds:       req.TimeoutSeconds,
		Priority:             req.Priority,
		Status:               models.TaskPending,
		Currency:             currency,
		EscrowAmount:         EscrowFor(req.MaxPricePerHour, req.TimeoutSeconds),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if _, err := tx.debit(accountId, models.BillingTaskEscrow, t.EscrowAmount, currency, t.Id, "escrow for "+t.Name); err != nil {
		return nil, err
	}
	tx.putTask(t)
	tx.emitStatus(t, "task submitted")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	metrics.TasksSubmitted.WithLabelValues(string(t.Type)).Inc()
	logs.GetLogger().Infof("task submitted: %s account: %s escrow: %s %s", t.Id, accountId, t.EscrowAmount, currency)

	wait := "unknown"
	if m.anyEligible(t) {
		wait = "immediate"
	}
	return &models.TaskSubmission{Task: t, EstimatedWait: wait}, nil
}

func (m *Market) canRead(accountId string, t *models.Task) bool {
	if t.AccountId == accountId {
		return true
	}
	acct, ok := m.accounts[accountId]
	return ok && acct.ProviderId != "" && acct.ProviderId == t.ProviderId
}

func (m *Market) readableTask(accountId, taskId string) (*models.Task, error) {
	t, ok := m.tasks[taskId]
	if !ok || !m.canRead(accountId, t) {
		return nil, models.ErrTaskNotFound(taskId)
	}
	return t, nil
}

func (m *Market) GetTask(accountId, taskId string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readableTask(accountId, taskId)
}

func (m *Market) ListTasks(accountId string, q models.ListTasksReq) (*models.TaskList, error) {
	if q.Status != "" && !models.TaskStatus(q.Status).Valid() {
		return nil, models.ErrInvalidRequest("unknown status: " + q.Status)
	}
	if q.Limit <= 0 {
		q.Limit = constants.DefaultListLimit
	}
	if q.Limit > constants.MaxListLimit {
		q.Limit = constants.MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.Task
	for _, t := range m.tasks {
		if t.AccountId != accountId {
			continue
		}
		if q.Status != "" && string(t.Status) != q.Status {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Id > all[j].Id
	})
	out := &models.TaskList{Tasks: []*models.Task{}, Total: len(all), Limit: q.Limit, Offset: q.Offset}
	if q.Offset < len(all) {
		end := q.Offset + q.Limit
		if end > len(all) {
			end = len(all)
		}
		out.Tasks = all[q.Offset:end]
	}
	return out, nil
}

// UpdateTask changes a pending task and moves the escrow difference.
func (m *Market) UpdateTask(accountId, taskId string, req models.UpdateTaskReq) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := tx.task(taskId)
	if err != nil || t.AccountId != accountId {
		return nil, models.ErrTaskNotFound(taskId)
	}
	if t.Status != models.TaskPending {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	if req.MaxPricePerHour != nil {
		if !req.MaxPricePerHour.IsPositive() {
			return nil, models.ErrInvalidRequest("max_price_per_hour must be positive")
		}
		t.MaxPricePerHour = *req.MaxPricePerHour
	}
	if req.Priority != "" {
		if !req.Priority.Valid() {
			return nil, models.ErrInvalidRequest("priority must be high, normal or low")
		}
		t.Priority = req.Priority
	}
	if req.TimeoutSeconds < 0 {
		return nil, models.ErrInvalidRequest("timeout_seconds must be positive")
	}
	if req.TimeoutSeconds > 0 {
		t.TimeoutSeconds = req.TimeoutSeconds
	}

	escrow := EscrowFor(t.MaxPricePerHour, t.TimeoutSeconds)
	delta := escrow.Sub(t.EscrowAmount)
	switch {
	case delta.IsPositive():
		if _, err := tx.debit(accountId, models.BillingTaskEscrow, delta, t.Currency, t.Id, "escrow increase for "+t.Name); err != nil {
			return nil, err
		}
	case delta.IsNegative():
		tx.credit(accountId, models.BillingTaskRefund, delta.Neg(), t.Currency, t.Id, "escrow decrease for "+t.Name)
	}
	t.EscrowAmount = escrow
	t.UpdatedAt = m.now()
	tx.emitStatus(t, "task updated")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// CancelTask refunds a task that has not started and charges a running task
// for the time it used.
func (m *Market) CancelTask(accountId, taskId string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	t, err := tx.task(taskId)
	if err != nil || t.AccountId != accountId {
		return nil, models.ErrTaskNotFound(taskId)
	}
	switch t.Status {
	case models.TaskPending, models.TaskAccepted:
		m.refundTask(tx, t, models.TaskCancelled, "cancelled by client")
	case models.TaskRunning:
		elapsed := int64(m.now().Sub(*t.StartedAt).Seconds())
		m.chargeTask(tx, t, models.TaskCancelled, elapsed)
		tx.emitStatus(t, "cancelled by client")
	default:
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	metrics.TasksFinished.WithLabelValues(string(t.Status)).Inc()
	logs.GetLogger().Infof("task cancelled: %s cost: %s", taskId, t.Cost)
	return t, nil
}

func (m *Market) TaskLogs(accountId, taskId string, lines int) (*models.TaskLogs, error) {
	if lines <= 0 {
		lines = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.readableTask(accountId, taskId); err != nil {
		return nil, err
	}
	all := m.logs[taskId]
	start := 0
	if len(all) > lines {
		start = len(all) - lines
	}
	out := make([]models.LogLine, len(all)-start)
	copy(out, all[start:])
	return &models.TaskLogs{TaskId: taskId, Lines: out, Total: len(all)}, nil
}

func (m *Market) TaskMetrics(accountId, taskId string) (*models.TaskMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.readableTask(accountId, taskId)
	if err != nil {
		return nil, err
	}
	samples := make([]models.MetricSample, len(m.samples[taskId]))
	copy(samples, m.samples[taskId])
	out := &models.TaskMetrics{
		TaskId:        taskId,
		Status:        t.Status,
		Progress:      t.Progress,
		Samples:       samples,
		ResourceUsage: t.ResourceUsage,
	}
	if len(samples) > 0 {
		out.Latest = samples[len(samples)-1].Metrics
	}
	return out, nil
}

func (m *Market) TaskResults(accountId, taskId string) (*models.TaskResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.readableTask(accountId, taskId)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TaskCompleted || t.Result == nil {
		return nil, models.ErrInvalidTaskState(taskId, t.Status)
	}
	return &models.TaskResults{TaskId: taskId, TaskResult: *t.Result, Cost: t.Cost, Currency: t.Currency}, nil
}

// EscrowFor is max_price_per_hour for timeout_seconds, rounded up to 6 places.
func EscrowFor(maxPricePerHour decimal.Decimal, timeoutSeconds int) decimal.Decimal {
	return maxPricePerHour.Mul(decimal.NewFromInt(int64(timeoutSeconds))).
		Div(decimal.NewFromInt(3600)).RoundCeil(6)
}
