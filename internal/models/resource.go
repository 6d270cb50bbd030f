package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ResourceStatus string

const (
	ResourceAvailable ResourceStatus = "available"
	ResourceBusy      ResourceStatus = "busy"
	ResourceOffline   ResourceStatus = "offline"
)

type ProviderStatus string

const (
	ProviderOnline  ProviderStatus = "online"
	ProviderOffline ProviderStatus = "offline"
)

type ResourceSpecifications struct {
	Model             string `json:"model,omitempty" toml:"Model"`
	MemoryGb          int    `json:"memory_gb,omitempty" toml:"MemoryGb"`
	CpuCores          int    `json:"cpu_cores,omitempty" toml:"CpuCores"`
	RamGb             int    `json:"ram_gb,omitempty" toml:"RamGb"`
	StorageGb         int    `json:"storage_gb,omitempty" toml:"StorageGb"`
	ComputeCapability string `json:"compute_capability,omitempty" toml:"ComputeCapability"`
}

type ResourcePricing struct {
	PerHour   decimal.Decimal `json:"per_hour"`
	PerMinute decimal.Decimal `json:"per_minute"`
}

type Resource struct {
	Id             string                 `json:"resource_id"`
	ProviderId     string                 `json:"provider_id"`
	ResourceType   TaskType               `json:"resource_type"`
	Specifications ResourceSpecifications `json:"specifications"`
	Pricing        ResourcePricing        `json:"pricing"`
	Availability   map[string]interface{} `json:"availability,omitempty"`
	Status         ResourceStatus         `json:"status"`
	ActiveTaskId   string                 `json:"active_task_id,omitempty"`
	Location       string                 `json:"location,omitempty"`
	HeartbeatLost  bool                   `json:"heartbeat_lost,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type Provider struct {
	Id                 string         `json:"provider_id"`
	AccountId          string         `json:"account_id"`
	Name               string         `json:"name"`
	Location           string         `json:"location,omitempty"`
	WalletAddress      string         `json:"wallet_address"`
	Status             ProviderStatus `json:"status"`
	LastHeartbeat      time.Time      `json:"last_heartbeat"`
	ResourcesAvailable map[string]int `json:"resources_available,omitempty"`
	ActiveTasks        int            `json:"active_tasks"`
	CompletedTasks     int            `json:"completed_tasks"`
	FailedTasks        int            `json:"failed_tasks"`
	CreatedAt          time.Time      `json:"created_at"`
}

// SuccessRate is completed / (completed + failed), 1 for a provider without history.
func (p *Provider) SuccessRate() float64 {
	total := p.CompletedTasks + p.FailedTasks
	if total == 0 {
		return 1
	}
	return float64(p.CompletedTasks) / float64(total)
}

type ProviderView struct {
	*Provider
	SuccessRate float64     `json:"success_rate"`
	Resources   []*Resource `json:"resources"`
}

type ProviderSearch struct {
	GpuMemoryMin int             `form:"gpu_memory_min"`
	CpuCoresMin  int             `form:"cpu_cores_min"`
	MaxPrice     decimal.Decimal `form:"-"`
	Location     string          `form:"location"`
}

type ProviderSearchResult struct {
	Providers []*ProviderMatch `json:"providers"`
	Total     int              `json:"total"`
}

type ProviderMatch struct {
	ProviderId  string          `json:"provider_id"`
	Name        string          `json:"name"`
	Location    string          `json:"location,omitempty"`
	SuccessRate float64         `json:"success_rate"`
	MinPrice    decimal.Decimal `json:"min_price_per_hour"`
	Resources   []*Resource     `json:"resources"`
}

type ResourceList struct {
	Resources []*Resource `json:"resources"`
	Total     int         `json:"total"`
}

type ProviderNodeStatus struct {
	ProviderId         string         `json:"provider_id"`
	Status             ProviderStatus `json:"status"`
	LastHeartbeat      time.Time      `json:"last_heartbeat"`
	ActiveTasks        int            `json:"active_tasks"`
	ResourcesTotal     int            `json:"resources_total"`
	ResourcesAvailable map[string]int `json:"resources_available,omitempty"`
	Eligible           bool           `json:"eligible"`
}

type ProviderMetrics struct {
	ProviderId         string          `json:"provider_id"`
	Period             string          `json:"period"`
	TasksCompleted     int             `json:"tasks_completed"`
	TasksFailed        int             `json:"tasks_failed"`
	SuccessRate        float64         `json:"success_rate"`
	AvgExecutionSecond float64         `json:"avg_execution_seconds"`
	TotalEarnings      decimal.Decimal `json:"total_earnings"`
}
