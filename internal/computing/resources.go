package computing

import (
	"strconv"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/shopspring/decimal"
)

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func validateSpecs(typ models.TaskType, spec models.ResourceSpecifications) error {
	if !typ.Valid() {
		return models.ErrInvalidRequest("resource_type must be gpu or cpu")
	}
	if spec.MemoryGb < 0 || spec.CpuCores < 0 || spec.RamGb < 0 || spec.StorageGb < 0 {
		return models.ErrInvalidRequest("specifications must not be negative")
	}
	if typ == models.TaskTypeGPU && spec.MemoryGb == 0 {
		return models.ErrInvalidRequest("gpu resources require specifications.memory_gb")
	}
	return nil
}

func normalizePricing(p models.ResourcePricing) (models.ResourcePricing, error) {
	if !p.PerHour.IsPositive() {
		return p, models.ErrInvalidRequest("pricing.per_hour must be positive")
	}
	if p.PerMinute.IsNegative() {
		return p, models.ErrInvalidRequest("pricing.per_minute must not be negative")
	}
	if p.PerMinute.IsZero() {
		p.PerMinute = p.PerHour.Div(decimal.NewFromInt(60)).RoundCeil(6)
	}
	return p, nil
}

func (m *Market) CreateResource(providerId string, req models.CreateResourceReq) (*models.Resource, error) {
	if err := validateSpecs(req.ResourceType, req.Specifications); err != nil {
		return nil, err
	}
	pricing, err := normalizePricing(req.Pricing)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	prov, err := tx.provider(providerId)
	if err != nil {
		return nil, err
	}
	now := m.now()
	status := models.ResourceAvailable
	if prov.Status != models.ProviderOnline {
		status = models.ResourceOffline
	}
	res := &models.Resource{
		Id:             newId("res_"),
		ProviderId:     providerId,
		ResourceType:   req.ResourceType,
		Specifications: req.Specifications,
		Pricing:        pricing,
		Availability:   req.Availability,
		Status:         status,
		HeartbeatLost:  status == models.ResourceOffline,
		Location:       prov.Location,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx.putResource(res)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("resource registered: %s provider: %s type: %s", res.Id, providerId, res.ResourceType)
	return res, nil
}

func (m *Market) GetResource(providerId, resourceId string) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[resourceId]
	if !ok || r.ProviderId != providerId {
		return nil, models.ErrResourceNotFound(resourceId)
	}
	return r, nil
}

func (m *Market) ListResources(providerId, typ, status string) (*models.ResourceList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerId]; !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	out := &models.ResourceList{Resources: []*models.Resource{}}
	for _, r := range m.resourcesOf(providerId) {
		if typ != "" && string(r.ResourceType) != typ {
			continue
		}
		if status != "" && string(r.Status) != status {
			continue
		}
		out.Resources = append(out.Resources, r)
	}
	out.Total = len(out.Resources)
	return out, nil
}

func (m *Market) UpdateResource(providerId, resourceId string, req models.UpdateResourceReq) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	res, err := tx.resource(resourceId)
	if err != nil || res.ProviderId != providerId {
		return nil, models.ErrResourceNotFound(resourceId)
	}
	if req.Pricing != nil {
		pricing, err := normalizePricing(*req.Pricing)
		if err != nil {
			return nil, err
		}
		res.Pricing = pricing
	}
	if req.Availability != nil {
		res.Availability = req.Availability
	}
	switch req.Status {
	case "":
	case models.ResourceAvailable, models.ResourceOffline:
		if res.ActiveTaskId != "" {
			return nil, models.ErrInvalidRequest("resource has an active task")
		}
		res.Status = req.Status
		res.HeartbeatLost = false
	default:
		return nil, models.ErrInvalidRequest("status must be available or offline")
	}
	res.UpdatedAt = m.now()
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Market) DeleteResource(providerId, resourceId string) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	res, err := tx.resource(resourceId)
	if err != nil || res.ProviderId != providerId {
		return nil, models.ErrResourceNotFound(resourceId)
	}
	if res.ActiveTaskId != "" {
		return nil, models.ErrInvalidRequest("resource has an active task")
	}
	tx.removeResource(resourceId)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("resource removed: %s provider: %s", resourceId, providerId)
	return res, nil
}

func (m *Market) Heartbeat(providerId string, req models.HeartbeatReq) (*models.ProviderNodeStatus, error) {
	status := req.Status
	if status == "" {
		status = models.ProviderOnline
	}
	if status != models.ProviderOnline && status != models.ProviderOffline {
		return nil, models.ErrInvalidRequest("status must be online or offline")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	prov, err := tx.provider(providerId)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if prov.Status != status {
		logs.GetLogger().Infof("provider %s is %s", providerId, status)
	}
	prov.Status = status
	prov.LastHeartbeat = now
	prov.ActiveTasks = req.ActiveTasks
	prov.ResourcesAvailable = req.ResourcesAvailable
	m.setIdleResources(tx, providerId, status == models.ProviderOnline)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return m.nodeStatus(prov), nil
}

// setIdleResources takes idle resources offline when the provider goes away
// and brings back the ones it took offline when the provider returns.
func (m *Market) setIdleResources(tx *txn, providerId string, online bool) {
	now := m.now()
	for _, r := range m.resourcesOf(providerId) {
		if r.ActiveTaskId != "" {
			continue
		}
		switch {
		case online && r.Status == models.ResourceOffline && r.HeartbeatLost:
			res, _ := tx.resource(r.Id)
			res.Status = models.ResourceAvailable
			res.HeartbeatLost = false
			res.UpdatedAt = now
		case !online && r.Status == models.ResourceAvailable:
			res, _ := tx.resource(r.Id)
			res.Status = models.ResourceOffline
			res.HeartbeatLost = true
			res.UpdatedAt = now
		}
	}
}

func (m *Market) activeTasksOf(providerId string) int {
	n := 0
	for _, r := range m.resources {
		if r.ProviderId == providerId && r.ActiveTaskId != "" {
			n++
		}
	}
	return n
}

func (m *Market) nodeStatus(prov *models.Provider) *models.ProviderNodeStatus {
	staked := m.stakedOf(prov.Id)
	return &models.ProviderNodeStatus{
		ProviderId:         prov.Id,
		Status:             prov.Status,
		LastHeartbeat:      prov.LastHeartbeat,
		ActiveTasks:        m.activeTasksOf(prov.Id),
		ResourcesTotal:     len(m.resourcesOf(prov.Id)),
		ResourcesAvailable: prov.ResourcesAvailable,
		Eligible:           prov.Status == models.ProviderOnline && !staked.LessThan(m.opts.MinimumStake),
	}
}

func (m *Market) ProviderStatus(providerId string) (*models.ProviderNodeStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prov, ok := m.providers[providerId]
	if !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	return m.nodeStatus(prov), nil
}

func (m *Market) GetProvider(providerId string) (*models.ProviderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prov, ok := m.providers[providerId]
	if !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	resources := m.resourcesOf(providerId)
	if resources == nil {
		resources = []*models.Resource{}
	}
	return &models.ProviderView{Provider: prov, SuccessRate: prov.SuccessRate(), Resources: resources}, nil
}

// ParsePeriod accepts Go durations plus a day suffix such as "7d".
func ParsePeriod(period string) (time.Duration, error) {
	if period == "" {
		period = "7d"
	}
	if strings.HasSuffix(period, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(period, "d"))
		if err != nil || days <= 0 {
			return 0, models.ErrInvalidRequest("invalid period: " + period)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(period)
	if err != nil || d <= 0 {
		return 0, models.ErrInvalidRequest("invalid period: " + period)
	}
	return d, nil
}

func (m *Market) ProviderMetrics(providerId, period string) (*models.ProviderMetrics, error) {
	window, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "7d"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerId]; !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	since := m.now().Add(-window)
	out := &models.ProviderMetrics{ProviderId: providerId, Period: period, SuccessRate: 1}
	var execTotal int64
	for _, t := range m.tasks {
		if t.ProviderId != providerId || t.FinishedAt == nil || t.FinishedAt.Before(since) {
			continue
		}
		switch t.Status {
		case models.TaskCompleted:
			out.TasksCompleted++
			if t.Result != nil {
				execTotal += t.Result.ExecutionTimeSeconds
			}
		case models.TaskFailed, models.TaskTimeout:
			out.TasksFailed++
		}
		out.TotalEarnings = out.TotalEarnings.Add(t.Cost.Sub(t.ProtocolFee))
	}
	if n := out.TasksCompleted + out.TasksFailed; n > 0 {
		out.SuccessRate = float64(out.TasksCompleted) / float64(n)
	}
	if out.TasksCompleted > 0 {
		out.AvgExecutionSecond = float64(execTotal) / float64(out.TasksCompleted)
	}
	return out, nil
}
