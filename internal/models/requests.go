package models

import "github.com/shopspring/decimal"

type CreateTaskReq struct {
	Name                 string               `json:"name"`
	Type                 TaskType             `json:"type"`
	ResourceRequirements ResourceRequirements `json:"resource_requirements"`
	DockerImage          string               `json:"docker_image"`
	Command              []string             `json:"command"`
	MaxPricePerHour      decimal.Decimal      `json:"max_price_per_hour"`
	TimeoutSeconds       int                  `json:"timeout_seconds,omitempty"`
	Priority             Priority             `json:"priority,omitempty"`
}

type UpdateTaskReq struct {
	MaxPricePerHour *decimal.Decimal `json:"max_price_per_hour,omitempty"`
	Priority        Priority         `json:"priority,omitempty"`
	TimeoutSeconds  int              `json:"timeout_seconds,omitempty"`
}

type ListTasksReq struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

type CreateResourceReq struct {
	ResourceType   TaskType               `json:"resource_type"`
	Specifications ResourceSpecifications `json:"specifications"`
	Pricing        ResourcePricing        `json:"pricing"`
	Availability   map[string]interface{} `json:"availability,omitempty"`
}

type UpdateResourceReq struct {
	Pricing      *ResourcePricing       `json:"pricing,omitempty"`
	Availability map[string]interface{} `json:"availability,omitempty"`
	Status       ResourceStatus         `json:"status,omitempty"`
}

type AcceptTaskReq struct {
	TaskId     string `json:"task_id"`
	ResourceId string `json:"resource_id,omitempty"`
}

type StartTaskReq struct {
	ContainerId   string             `json:"container_id,omitempty"`
	ResourceUsage map[string]float64 `json:"resource_usage,omitempty"`
}

type ProgressReq struct {
	Progress int                `json:"progress"`
	Status   TaskStatus         `json:"status,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

type AppendLogsReq struct {
	Lines []string `json:"lines"`
}

type CompleteTaskReq struct {
	ResultHash           string             `json:"result_hash"`
	ResultStorageUrl     string             `json:"result_storage_url"`
	ExecutionTimeSeconds int64              `json:"execution_time_seconds"`
	ResourceUsage        map[string]float64 `json:"resource_usage,omitempty"`
}

type FailTaskReq struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Logs         string `json:"logs,omitempty"`
}

type DepositReq struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Memo     string          `json:"memo,omitempty"`
}

type PaymentMethodReq struct {
	PreferredCurrency string           `json:"preferred_currency,omitempty"`
	AutoTopup         bool             `json:"auto_topup"`
	TopupThreshold    *decimal.Decimal `json:"topup_threshold,omitempty"`
	TopupAmount       *decimal.Decimal `json:"topup_amount,omitempty"`
}

type StakeReq struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

type PayoutReq struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	WalletAddress string          `json:"wallet_address,omitempty"`
}

type HeartbeatReq struct {
	Status             ProviderStatus `json:"status,omitempty"`
	ActiveTasks        int            `json:"active_tasks"`
	ResourcesAvailable map[string]int `json:"resources_available,omitempty"`
}

type DateRangeReq struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type CreateAccountReq struct {
	Role          Role   `json:"role"`
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
	Location      string `json:"location,omitempty"`
}

type AccountList struct {
	Accounts []*Account `json:"accounts"`
	Total    int        `json:"total"`
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
