package computing

import (
	"fmt"
	"sort"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// CostFor charges price per hour for seconds of execution, never more than escrow.
func CostFor(pricePerHour decimal.Decimal, seconds int64, escrow decimal.Decimal) decimal.Decimal {
	if seconds < 0 {
		seconds = 0
	}
	cost := pricePerHour.Mul(decimal.NewFromInt(seconds)).Div(decimal.NewFromInt(3600)).Round(6)
	if cost.GreaterThan(escrow) {
		return escrow
	}
	return cost
}

func (m *Market) releaseResource(tx *txn, t *models.Task) {
	if t.ResourceId == "" {
		return
	}
	res, err := tx.resource(t.ResourceId)
	if err != nil || res.ActiveTaskId != t.Id {
		return
	}
	res.ActiveTaskId = ""
	res.Status = models.ResourceAvailable
	if p, ok := m.providers[res.ProviderId]; ok && p.Status != models.ProviderOnline {
		res.Status = models.ResourceOffline
		res.HeartbeatLost = true
	}
	res.UpdatedAt = m.now()
}

func (m *Market) finish(tx *txn, t *models.Task, status models.TaskStatus) {
	now := m.now()
	t.Status = status
	t.FinishedAt = &now
	t.UpdatedAt = now
	m.releaseResource(tx, t)
}

// refundTask ends a task that never ran and returns the whole escrow.
func (m *Market) refundTask(tx *txn, t *models.Task, status models.TaskStatus, reason string) {
	if t.EscrowAmount.IsPositive() {
		tx.credit(t.AccountId, models.BillingTaskRefund, t.EscrowAmount, t.Currency, t.Id, reason)
	}
	t.Cost = decimal.Zero
	m.finish(tx, t, status)
	tx.emitStatus(t, reason)
}

// chargeTask settles a task for seconds of execution: the escrow is released,
// the cost is charged, the provider earns cost minus the protocol fee and the
// client gets an invoice.
func (m *Market) chargeTask(tx *txn, t *models.Task, status models.TaskStatus, seconds int64) *models.TaskSettlement {
	cost := CostFor(t.PricePerHour, seconds, t.EscrowAmount)
	fee := cost.Mul(m.opts.ProtocolFeeRate).Round(6)
	earnings := cost.Sub(fee)
	refund := t.EscrowAmount.Sub(cost)

	tx.credit(t.AccountId, models.BillingTaskRefund, t.EscrowAmount, t.Currency, t.Id, "escrow released for "+t.Name)
	payment, _ := tx.debit(t.AccountId, models.BillingTaskPayment, cost, t.Currency, t.Id, fmt.Sprintf("%s: %ds at %s/h", t.Name, seconds, t.PricePerHour))

	if prov, err := tx.provider(t.ProviderId); err == nil {
		if earnings.IsPositive() {
			tx.credit(prov.AccountId, models.BillingTaskEarning, earnings, t.Currency, t.Id, "earnings for "+t.Id)
		}
		if status == models.TaskCompleted {
			prov.CompletedTasks++
		}
	}
	if fee.IsPositive() {
		tx.credit(constants.ProtocolTreasuryAccount, models.BillingProtocolFee, fee, t.Currency, t.Id, "protocol fee for "+t.Id)
	}

	t.Cost = cost
	t.ProtocolFee = fee
	m.finish(tx, t, status)

	if cost.IsPositive() {
		inv := &models.Invoice{
			Id:        newId("inv_"),
			AccountId: t.AccountId,
			TaskId:    t.Id,
			Currency:  t.Currency,
			Items: []models.InvoiceItem{{
				Description: fmt.Sprintf("%s compute, %ds at %s %s/h", t.Type, seconds, t.PricePerHour, t.Currency),
				Amount:      cost,
			}},
			Total:     cost,
			Status:    "paid",
			CreatedAt: m.now(),
		}
		payment.InvoiceId = inv.Id
		t.InvoiceId = inv.Id
		tx.putInvoice(inv)
		m.archiveAfterCommit(tx, inv)
	}
	return &models.TaskSettlement{Task: t, Earnings: earnings, Fee: fee, Refund: refund}
}

// faultTask ends a task the provider failed: the client is refunded in full
// and the provider stake is slashed into the treasury.
func (m *Market) faultTask(tx *txn, t *models.Task, status models.TaskStatus, code, message string) {
	t.ErrorCode = code
	t.ErrorMessage = message
	if t.EscrowAmount.IsPositive() {
		tx.credit(t.AccountId, models.BillingTaskRefund, t.EscrowAmount, t.Currency, t.Id, fmt.Sprintf("refund for %s task", status))
	}
	t.Cost = decimal.Zero
	m.finish(tx, t, status)
	tx.emitStatus(t, message)

	prov, err := tx.provider(t.ProviderId)
	if err != nil {
		return
	}
	prov.FailedTasks++

	stake := tx.stake(prov.Id)
	amount := t.EscrowAmount.Mul(m.opts.SlashRate).Round(6)
	if amount.GreaterThan(stake.StakedAmount) {
		amount = stake.StakedAmount
	}
	if !amount.IsPositive() {
		return
	}
	now := m.now()
	stake.StakedAmount = stake.StakedAmount.Sub(amount)
	stake.SlashedTotal = stake.SlashedTotal.Add(amount)
	stake.UpdatedAt = now
	tx.slashes = append(tx.slashes, &models.SlashEvent{
		Id:         newId("slash_"),
		ProviderId: prov.Id,
		TaskId:     t.Id,
		Amount:     amount,
		Currency:   stake.Currency,
		Reason:     string(status),
		CreatedAt:  now,
	})
	// the provider side is recorded against the stake, not the balance
	tx.record(prov.AccountId, models.BillingSlash, amount.Neg(), stake.Currency, t.Id, "stake slashed for "+t.Id)
	tx.credit(constants.ProtocolTreasuryAccount, models.BillingSlash, amount, stake.Currency, t.Id, "slash from "+prov.Id)
	logs.GetLogger().Infof("provider %s slashed %s %s for task %s", prov.Id, amount, stake.Currency, t.Id)
}

func (m *Market) archiveAfterCommit(tx *txn, inv *models.Invoice) {
	if m.archiver == nil {
		return
	}
	archiver := m.archiver
	tx.onCommit(func() {
		go func() {
			url, err := archiver.ArchiveInvoice(inv)
			if err != nil {
				logs.GetLogger().Errorf("archive invoice %s failed, error: %+v", inv.Id, err)
				return
			}
			m.setInvoiceArchiveUrl(inv.Id, url)
		}()
	})
}

func (m *Market) setInvoiceArchiveUrl(invoiceId, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.invoices[invoiceId]
	if !ok {
		return
	}
	inv := *cur
	inv.ArchiveUrl = url
	tx := m.begin()
	tx.putInvoice(&inv)
	if err := tx.commit(); err != nil {
		logs.GetLogger().Errorf("saving archive url for %s failed, error: %+v", invoiceId, err)
	}
}

func (m *Market) GetBalance(accountId string) *models.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[accountId]; ok {
		return b
	}
	return &models.Balance{AccountId: accountId, UsdcBalance: decimal.Zero, UsdtBalance: decimal.Zero}
}

func (m *Market) Deposit(accountId string, req models.DepositReq) (*models.DepositResult, error) {
	if req.Currency == "" {
		req.Currency = constants.CurrencyUSDC
	}
	if !validCurrency(req.Currency) {
		return nil, models.ErrInvalidRequest("currency must be USDC or USDT")
	}
	if !req.Amount.IsPositive() {
		return nil, models.ErrInvalidRequest("amount must be positive")
	}
	description := req.Memo
	if description == "" {
		description = "deposit"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	if _, ok := tx.account(accountId); !ok {
		return nil, models.ErrAuthentication("unknown account")
	}
	rec := tx.credit(accountId, models.BillingDeposit, req.Amount, req.Currency, "", description)
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("deposit: %s %s %s", accountId, req.Amount, req.Currency)
	return &models.DepositResult{Record: rec, Balance: m.balances[accountId]}, nil
}

// ParseDateRange reads inclusive YYYY-MM-DD bounds; an empty bound is open.
func ParseDateRange(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = time.Parse(dateLayout, start); err != nil {
			return from, to, models.ErrInvalidRequest("start_date must be YYYY-MM-DD")
		}
	}
	if end != "" {
		if to, err = time.Parse(dateLayout, end); err != nil {
			return from, to, models.ErrInvalidRequest("end_date must be YYYY-MM-DD")
		}
		to = to.Add(24 * time.Hour)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, models.ErrInvalidRequest("start_date must not be after end_date")
	}
	return from, to, nil
}

func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && !ts.Before(to) {
		return false
	}
	return true
}

func (m *Market) BillingHistory(accountId string, q models.DateRangeReq) (*models.BillingHistory, error) {
	from, to, err := ParseDateRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &models.BillingHistory{Records: []*models.BillingRecord{}, StartDate: q.StartDate, EndDate: q.EndDate}
	recs := m.billing[accountId]
	for i := len(recs) - 1; i >= 0; i-- {
		if inRange(recs[i].CreatedAt.UTC(), from, to) {
			out.Records = append(out.Records, recs[i])
		}
	}
	out.Total = len(out.Records)
	return out, nil
}

func (m *Market) GetInvoice(accountId, invoiceId string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceId]
	if !ok || inv.AccountId != accountId {
		return nil, models.ErrNotFound("invoice", invoiceId)
	}
	return inv, nil
}

func (m *Market) SetPaymentMethod(accountId string, req models.PaymentMethodReq) (*models.PaymentMethod, error) {
	if req.PreferredCurrency == "" {
		req.PreferredCurrency = constants.CurrencyUSDC
	}
	if !validCurrency(req.PreferredCurrency) {
		return nil, models.ErrInvalidRequest("preferred_currency must be USDC or USDT")
	}
	pm := models.PaymentMethod{PreferredCurrency: req.PreferredCurrency, AutoTopup: req.AutoTopup}
	if req.TopupThreshold != nil {
		if req.TopupThreshold.IsNegative() {
			return nil, models.ErrInvalidRequest("topup_threshold must not be negative")
		}
		pm.TopupThreshold = *req.TopupThreshold
	}
	if req.TopupAmount != nil {
		if req.TopupAmount.IsNegative() {
			return nil, models.ErrInvalidRequest("topup_amount must not be negative")
		}
		pm.TopupAmount = *req.TopupAmount
	}
	if pm.AutoTopup && !pm.TopupAmount.IsPositive() {
		return nil, models.ErrInvalidRequest("auto_topup requires a positive topup_amount")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	acct, ok := tx.account(accountId)
	if !ok {
		return nil, models.ErrAuthentication("unknown account")
	}
	acct.PaymentMethod = pm
	if err := tx.commit(); err != nil {
		return nil, err
	}
	return &pm, nil
}

func (m *Market) stakingStatus(providerId string) *models.StakingStatus {
	pos, ok := m.stakes[providerId]
	if !ok {
		pos = &models.StakePosition{ProviderId: providerId, Currency: m.opts.StakeCurrency}
	}
	return &models.StakingStatus{
		ProviderId:      providerId,
		StakedAmount:    pos.StakedAmount,
		Currency:        pos.Currency,
		MinimumRequired: m.opts.MinimumStake,
		ActiveTasks:     m.activeTasksOf(providerId),
		SlashedTotal:    pos.SlashedTotal,
		Eligible:        !pos.StakedAmount.LessThan(m.opts.MinimumStake),
		SlashEvents:     append([]*models.SlashEvent{}, m.slashes[providerId]...),
	}
}

func (m *Market) StakingStatus(providerId string) (*models.StakingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerId]; !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	return m.stakingStatus(providerId), nil
}

func (m *Market) checkStakeReq(req *models.StakeReq) error {
	if req.Currency == "" {
		req.Currency = m.opts.StakeCurrency
	}
	if req.Currency != m.opts.StakeCurrency {
		return models.ErrInvalidRequest("stake currency must be " + m.opts.StakeCurrency)
	}
	if !req.Amount.IsPositive() {
		return models.ErrInvalidRequest("amount must be positive")
	}
	return nil
}

func (m *Market) Stake(providerId string, req models.StakeReq) (*models.StakingStatus, error) {
	if err := m.checkStakeReq(&req); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	prov, err := tx.provider(providerId)
	if err != nil {
		return nil, err
	}
	if _, err := tx.debit(prov.AccountId, models.BillingStake, req.Amount, req.Currency, "", "stake"); err != nil {
		return nil, err
	}
	pos := tx.stake(providerId)
	pos.StakedAmount = pos.StakedAmount.Add(req.Amount)
	pos.UpdatedAt = m.now()
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("provider %s staked %s %s", providerId, req.Amount, req.Currency)
	return m.stakingStatus(providerId), nil
}

func (m *Market) Unstake(providerId string, req models.StakeReq) (*models.StakingStatus, error) {
	if err := m.checkStakeReq(&req); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	prov, err := tx.provider(providerId)
	if err != nil {
		return nil, err
	}
	pos := tx.stake(providerId)
	if req.Amount.GreaterThan(pos.StakedAmount) {
		return nil, models.ErrInsufficientStake(req.Amount, pos.StakedAmount, pos.Currency)
	}
	remaining := pos.StakedAmount.Sub(req.Amount)
	if remaining.LessThan(m.opts.MinimumStake) && m.activeTasksOf(providerId) > 0 {
		return nil, models.ErrInsufficientStake(m.opts.MinimumStake, remaining, pos.Currency)
	}
	pos.StakedAmount = remaining
	pos.UpdatedAt = m.now()
	tx.credit(prov.AccountId, models.BillingUnstake, req.Amount, req.Currency, "", "unstake")
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("provider %s unstaked %s %s", providerId, req.Amount, req.Currency)
	return m.stakingStatus(providerId), nil
}

func (m *Market) Earnings(providerId string, q models.DateRangeReq) (*models.EarningsSummary, error) {
	from, to, err := ParseDateRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prov, ok := m.providers[providerId]
	if !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	out := &models.EarningsSummary{
		ProviderId:       providerId,
		StartDate:        q.StartDate,
		EndDate:          q.EndDate,
		TotalEarnings:    map[string]decimal.Decimal{},
		FeesWithheld:     map[string]decimal.Decimal{},
		AvailableBalance: map[string]decimal.Decimal{},
		PendingPayouts:   map[string]decimal.Decimal{},
	}
	for _, t := range m.tasks {
		if t.ProviderId != providerId || t.FinishedAt == nil || !t.Cost.IsPositive() {
			continue
		}
		if !inRange(t.FinishedAt.UTC(), from, to) {
			continue
		}
		out.TotalEarnings[t.Currency] = out.TotalEarnings[t.Currency].Add(t.Cost.Sub(t.ProtocolFee))
		out.FeesWithheld[t.Currency] = out.FeesWithheld[t.Currency].Add(t.ProtocolFee)
		if t.Status == models.TaskCompleted {
			out.TasksCompleted++
		}
	}
	bal := m.balances[prov.AccountId]
	if bal == nil {
		bal = &models.Balance{}
	}
	out.AvailableBalance[constants.CurrencyUSDC] = bal.UsdcBalance
	out.AvailableBalance[constants.CurrencyUSDT] = bal.UsdtBalance
	for _, p := range m.payouts {
		if p.ProviderId == providerId && p.Status == models.PayoutPending {
			out.PendingPayouts[p.Currency] = out.PendingPayouts[p.Currency].Add(p.Amount)
		}
	}
	return out, nil
}

func (m *Market) RequestPayout(providerId string, req models.PayoutReq) (*models.Payout, error) {
	if req.Currency == "" {
		req.Currency = constants.CurrencyUSDC
	}
	if !validCurrency(req.Currency) {
		return nil, models.ErrInvalidRequest("currency must be USDC or USDT")
	}
	if !req.Amount.IsPositive() {
		return nil, models.ErrInvalidRequest("amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	prov, err := tx.provider(providerId)
	if err != nil {
		return nil, err
	}
	wallet := req.WalletAddress
	if wallet == "" {
		wallet = prov.WalletAddress
	}
	p := &models.Payout{
		Id:            newId("payout_"),
		ProviderId:    providerId,
		Amount:        req.Amount,
		Currency:      req.Currency,
		WalletAddress: wallet,
		Status:        models.PayoutPending,
		CreatedAt:     m.now(),
	}
	if _, err := tx.debit(prov.AccountId, models.BillingPayout, req.Amount, req.Currency, "", "payout "+p.Id); err != nil {
		return nil, err
	}
	tx.putPayout(p)
	if d := m.dispatcher; d != nil {
		tx.onCommit(func() {
			if err := d.Dispatch(p.Id); err != nil {
				logs.GetLogger().Errorf("dispatch payout %s failed, error: %+v", p.Id, err)
			}
		})
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("payout requested: %s provider: %s %s %s", p.Id, providerId, p.Amount, p.Currency)
	return p, nil
}

// ProcessPayout settles a pending payout. A failed transfer returns the
// funds to the provider balance.
func (m *Market) ProcessPayout(payoutId string, transferErr error) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.begin()
	p, err := tx.payout(payoutId)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PayoutPending {
		return p, nil
	}
	now := m.now()
	p.ProcessedAt = &now
	if transferErr != nil {
		prov, err := tx.provider(p.ProviderId)
		if err != nil {
			return nil, err
		}
		p.Status = models.PayoutFailed
		p.Reference = transferErr.Error()
		tx.credit(prov.AccountId, models.BillingPayout, p.Amount, p.Currency, "", "payout "+p.Id+" failed")
	} else {
		p.Status = models.PayoutCompleted
		p.Reference = newId("ref_")
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("payout %s %s", p.Id, p.Status)
	return p, nil
}

func (m *Market) payoutsOf(providerId string, pendingOnly bool) []*models.Payout {
	var list []*models.Payout
	for _, p := range m.payouts {
		if p.ProviderId != providerId || (pendingOnly && p.Status != models.PayoutPending) {
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].Id > list[j].Id
	})
	return list
}

func payoutList(list []*models.Payout) *models.PayoutList {
	out := &models.PayoutList{Payouts: []*models.Payout{}, Amount: map[string]decimal.Decimal{}}
	for _, p := range list {
		out.Payouts = append(out.Payouts, p)
		out.Amount[p.Currency] = out.Amount[p.Currency].Add(p.Amount)
	}
	out.Total = len(out.Payouts)
	return out
}

func (m *Market) PayoutHistory(providerId string, limit int) (*models.PayoutList, error) {
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerId]; !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	list := m.payoutsOf(providerId, false)
	if len(list) > limit {
		list = list[:limit]
	}
	return payoutList(list), nil
}

func (m *Market) PendingPayouts(providerId string) (*models.PayoutList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerId]; !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	return payoutList(m.payoutsOf(providerId, true)), nil
}

// PendingPayoutIds lists every payout still waiting for the dispatcher.
func (m *Market) PendingPayoutIds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, p := range m.payouts {
		if p.Status == models.PayoutPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
