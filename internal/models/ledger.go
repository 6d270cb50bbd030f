package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

type PaymentMethod struct {
	PreferredCurrency string          `json:"preferred_currency"`
	AutoTopup         bool            `json:"auto_topup"`
	TopupThreshold    decimal.Decimal `json:"topup_threshold"`
	TopupAmount       decimal.Decimal `json:"topup_amount"`
}

type Account struct {
	Id            string        `json:"account_id"`
	Role          Role          `json:"role"`
	Name          string        `json:"name"`
	WalletAddress string        `json:"wallet_address"`
	ProviderId    string        `json:"provider_id,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time     `json:"created_at"`
}

// AccountRecord is the stored form of an Account.
type AccountRecord struct {
	Account
	ApiKeyHash string `json:"api_key_hash"`
}

type Balance struct {
	AccountId   string          `json:"account_id"`
	UsdcBalance decimal.Decimal `json:"usdc_balance"`
	UsdtBalance decimal.Decimal `json:"usdt_balance"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (b *Balance) Get(currency string) decimal.Decimal {
	if currency == "USDT" {
		return b.UsdtBalance
	}
	return b.UsdcBalance
}

func (b *Balance) Add(currency string, amount decimal.Decimal) {
	if currency == "USDT" {
		b.UsdtBalance = b.UsdtBalance.Add(amount)
		return
	}
	b.UsdcBalance = b.UsdcBalance.Add(amount)
}

type BillingType string

const (
	BillingDeposit     BillingType = "deposit"
	BillingTaskEscrow  BillingType = "task_escrow"
	BillingTaskRefund  BillingType = "task_refund"
	BillingTaskPayment BillingType = "task_payment"
	BillingTaskEarning BillingType = "task_earning"
	BillingProtocolFee BillingType = "protocol_fee"
	BillingPayout      BillingType = "payout"
	BillingStake       BillingType = "stake"
	BillingUnstake     BillingType = "unstake"
	BillingSlash       BillingType = "slash"
)

type BillingRecord struct {
	Id          string          `json:"record_id"`
	AccountId   string          `json:"account_id"`
	Type        BillingType     `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	TaskId      string          `json:"task_id,omitempty"`
	InvoiceId   string          `json:"invoice_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type BillingHistory struct {
	Records   []*BillingRecord `json:"records"`
	Total     int              `json:"total"`
	StartDate string           `json:"start_date,omitempty"`
	EndDate   string           `json:"end_date,omitempty"`
}

type InvoiceItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type Invoice struct {
	Id         string          `json:"invoice_id"`
	AccountId  string          `json:"account_id"`
	TaskId     string          `json:"task_id"`
	Currency   string          `json:"currency"`
	Items      []InvoiceItem   `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Status     string          `json:"status"`
	ArchiveUrl string          `json:"archive_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type StakePosition struct {
	ProviderId   string          `json:"provider_id"`
	StakedAmount decimal.Decimal `json:"staked_amount"`
	Currency     string          `json:"currency"`
	SlashedTotal decimal.Decimal `json:"slashed_total"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type StakingStatus struct {
	ProviderId      string          `json:"provider_id"`
	StakedAmount    decimal.Decimal `json:"staked_amount"`
	Currency        string          `json:"currency"`
	MinimumRequired decimal.Decimal `json:"minimum_required"`
	ActiveTasks     int             `json:"active_tasks"`
	SlashedTotal    decimal.Decimal `json:"slashed_total"`
	Eligible        bool            `json:"eligible"`
	SlashEvents     []*SlashEvent   `json:"slash_events"`
}

type SlashEvent struct {
	Id         string          `json:"slash_id"`
	ProviderId string          `json:"provider_id"`
	TaskId     string          `json:"task_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

type Payout struct {
	Id            string          `json:"payout_id"`
	ProviderId    string          `json:"provider_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	WalletAddress string          `json:"wallet_address"`
	Status        PayoutStatus    `json:"status"`
	Reference     string          `json:"reference,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

type PayoutList struct {
	Payouts []*Payout                  `json:"payouts"`
	Total   int                        `json:"total"`
	Amount  map[string]decimal.Decimal `json:"total_amount"`
}

type EarningsSummary struct {
	ProviderId       string                     `json:"provider_id"`
	StartDate        string                     `json:"start_date,omitempty"`
	EndDate          string                     `json:"end_date,omitempty"`
	TotalEarnings    map[string]decimal.Decimal `json:"total_earnings"`
	FeesWithheld     map[string]decimal.Decimal `json:"fees_withheld"`
	TasksCompleted   int                        `json:"tasks_completed"`
	AvailableBalance map[string]decimal.Decimal `json:"available_balance"`
	PendingPayouts   map[string]decimal.Decimal `json:"pending_payouts"`
}

type DepositResult struct {
	Record  *BillingRecord `json:"record"`
	Balance *Balance       `json:"balance"`
}

// AccountCredentials is returned once on account creation.
type AccountCredentials struct {
	*Account
	ApiKey string `json:"api_key"`
}
