package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaskType string

const (
	TaskTypeGPU TaskType = "gpu"
	TaskTypeCPU TaskType = "cpu"
)

func (t TaskType) Valid() bool {
	return t == TaskTypeGPU || t == TaskTypeCPU
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAccepted  TaskStatus = "accepted"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskTimeout   TaskStatus = "timeout"
)

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimeout:
		return true
	}
	return false
}

// IsActive reports whether the task holds a resource.
func (s TaskStatus) IsActive() bool {
	return s == TaskAccepted || s == TaskRunning
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskAccepted, TaskRunning, TaskCompleted, TaskFailed, TaskCancelled, TaskTimeout:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Rank orders priorities for matching, lower first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	}
	return 1
}

type ResourceRequirements struct {
	CpuCores    int `json:"cpu_cores,omitempty" yaml:"cpu_cores"`
	GpuMemoryGb int `json:"gpu_memory_gb,omitempty" yaml:"gpu_memory_gb"`
	RamGb       int `json:"ram_gb,omitempty" yaml:"ram_gb"`
	StorageGb   int `json:"storage_gb,omitempty" yaml:"storage_gb"`
}

type TaskResult struct {
	ResultHash           string             `json:"result_hash"`
	ResultStorageUrl     string             `json:"result_storage_url"`
	ExecutionTimeSeconds int64              `json:"execution_time_seconds"`
	ResourceUsage        map[string]float64 `json:"resource_usage,omitempty"`
}

type Task struct {
	Id                   string               `json:"task_id"`
	AccountId            string               `json:"account_id"`
	Name                 string               `json:"name"`
	Type                 TaskType             `json:"type"`
	ResourceRequirements ResourceRequirements `json:"resource_requirements"`
	DockerImage          string               `json:"docker_image"`
	Command              []string             `json:"command"`
	MaxPricePerHour      decimal.Decimal      `json:"max_price_per_hour"`
	TimeoutSeconds       int                  `json:"timeout_seconds"`
	Priority             Priority             `json:"priority"`
	Status               TaskStatus           `json:"status"`
	Progress             int                  `json:"progress"`
	Currency             string               `json:"currency"`
	EscrowAmount         decimal.Decimal      `json:"escrow_amount"`

	ProviderId   string          `json:"provider_id,omitempty"`
	ResourceId   string          `json:"resource_id,omitempty"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	Cost         decimal.Decimal `json:"cost"`
	ProtocolFee  decimal.Decimal `json:"protocol_fee"`
	ContainerId  string          `json:"container_id,omitempty"`

	ResourceUsage map[string]float64 `json:"resource_usage,omitempty"`
	ErrorCode     string             `json:"error_code,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	Result        *TaskResult        `json:"result,omitempty"`
	InvoiceId     string             `json:"invoice_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type MetricSample struct {
	Timestamp time.Time          `json:"timestamp"`
	Progress  int                `json:"progress"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

type TaskLogs struct {
	TaskId string    `json:"task_id"`
	Lines  []LogLine `json:"lines"`
	Total  int       `json:"total"`
}

type TaskMetrics struct {
	TaskId        string             `json:"task_id"`
	Status        TaskStatus         `json:"status"`
	Progress      int                `json:"progress"`
	Latest        map[string]float64 `json:"latest,omitempty"`
	Samples       []MetricSample     `json:"samples"`
	ResourceUsage map[string]float64 `json:"resource_usage,omitempty"`
}

type TaskResults struct {
	TaskId string `json:"task_id"`
	TaskResult
	Cost     decimal.Decimal `json:"cost"`
	Currency string          `json:"currency"`
}

type TaskList struct {
	Tasks  []*Task `json:"tasks"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

type TaskSubmission struct {
	*Task
	EstimatedWait string `json:"estimated_wait"`
}

type TaskSettlement struct {
	*Task
	Earnings decimal.Decimal `json:"earnings"`
	Fee      decimal.Decimal `json:"fee"`
	Refund   decimal.Decimal `json:"refund"`
}

type AvailableTasks struct {
	Tasks []*Task `json:"tasks"`
}
