package computing

import (
	"fmt"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/shopspring/decimal"
)

// txn stages copies of the records an operation touches. Nothing becomes
// visible until commit has written every staged record to the store in one
// batch. Committed records are never mutated in place.
type txn struct {
	m *Market

	tasks     map[string]*models.Task
	resources map[string]*models.Resource
	removed   []string
	providers map[string]*models.Provider
	accounts  map[string]*models.AccountRecord
	balances  map[string]*models.Balance
	stakes    map[string]*models.StakePosition
	payouts   map[string]*models.Payout
	invoices  map[string]*models.Invoice
	logs      map[string][]models.LogLine
	samples   map[string][]models.MetricSample
	records   []*models.BillingRecord
	slashes   []*models.SlashEvent
	events    []models.TaskEvent
	after     []func()
}

func (m *Market) begin() *txn {
	return &txn{
		m:         m,
		tasks:     map[string]*models.Task{},
		resources: map[string]*models.Resource{},
		providers: map[string]*models.Provider{},
		accounts:  map[string]*models.AccountRecord{},
		balances:  map[string]*models.Balance{},
		stakes:    map[string]*models.StakePosition{},
		payouts:   map[string]*models.Payout{},
		invoices:  map[string]*models.Invoice{},
		logs:      map[string][]models.LogLine{},
		samples:   map[string][]models.MetricSample{},
	}
}

func (tx *txn) task(id string) (*models.Task, error) {
	if t, ok := tx.tasks[id]; ok {
		return t, nil
	}
	t, ok := tx.m.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound(id)
	}
	c := *t
	tx.tasks[id] = &c
	return &c, nil
}

func (tx *txn) putTask(t *models.Task) {
	tx.tasks[t.Id] = t
}

func (tx *txn) resource(id string) (*models.Resource, error) {
	if r, ok := tx.resources[id]; ok {
		return r, nil
	}
	r, ok := tx.m.resources[id]
	if !ok {
		return nil, models.ErrResourceNotFound(id)
	}
	c := *r
	tx.resources[id] = &c
	return &c, nil
}

func (tx *txn) putResource(r *models.Resource) {
	tx.resources[r.Id] = r
}

func (tx *txn) removeResource(id string) {
	delete(tx.resources, id)
	tx.removed = append(tx.removed, id)
}

func (tx *txn) provider(id string) (*models.Provider, error) {
	if p, ok := tx.providers[id]; ok {
		return p, nil
	}
	p, ok := tx.m.providers[id]
	if !ok {
		return nil, models.ErrNotFound("provider", id)
	}
	c := *p
	tx.providers[id] = &c
	return &c, nil
}

func (tx *txn) putProvider(p *models.Provider) {
	tx.providers[p.Id] = p
}

func (tx *txn) account(id string) (*models.AccountRecord, bool) {
	if a, ok := tx.accounts[id]; ok {
		return a, true
	}
	a, ok := tx.m.accounts[id]
	if !ok {
		return nil, false
	}
	c := *a
	tx.accounts[id] = &c
	return &c, true
}

func (tx *txn) putAccount(a *models.AccountRecord) {
	tx.accounts[a.Id] = a
}

func (tx *txn) balance(accountId string) *models.Balance {
	if b, ok := tx.balances[accountId]; ok {
		return b
	}
	var c models.Balance
	if b, ok := tx.m.balances[accountId]; ok {
		c = *b
	} else {
		c = models.Balance{AccountId: accountId}
	}
	tx.balances[accountId] = &c
	return &c
}

func (tx *txn) stake(providerId string) *models.StakePosition {
	if s, ok := tx.stakes[providerId]; ok {
		return s
	}
	var c models.StakePosition
	if s, ok := tx.m.stakes[providerId]; ok {
		c = *s
	} else {
		c = models.StakePosition{ProviderId: providerId, Currency: tx.m.opts.StakeCurrency}
	}
	tx.stakes[providerId] = &c
	return &c
}

func (tx *txn) payout(id string) (*models.Payout, error) {
	if p, ok := tx.payouts[id]; ok {
		return p, nil
	}
	p, ok := tx.m.payouts[id]
	if !ok {
		return nil, models.ErrNotFound("payout", id)
	}
	c := *p
	tx.payouts[id] = &c
	return &c, nil
}

func (tx *txn) putPayout(p *models.Payout) {
	tx.payouts[p.Id] = p
}

func (tx *txn) putInvoice(inv *models.Invoice) {
	tx.invoices[inv.Id] = inv
}

func (tx *txn) taskLogs(taskId string) []models.LogLine {
	if l, ok := tx.logs[taskId]; ok {
		return l
	}
	cur := tx.m.logs[taskId]
	l := make([]models.LogLine, len(cur))
	copy(l, cur)
	tx.logs[taskId] = l
	return l
}

func (tx *txn) taskSamples(taskId string) []models.MetricSample {
	if s, ok := tx.samples[taskId]; ok {
		return s
	}
	cur := tx.m.samples[taskId]
	s := make([]models.MetricSample, len(cur))
	copy(s, cur)
	tx.samples[taskId] = s
	return s
}

func (tx *txn) emit(evt models.TaskEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = tx.m.now()
	}
	tx.events = append(tx.events, evt)
}

func (tx *txn) emitStatus(t *models.Task, message string) {
	tx.emit(models.TaskEvent{
		Type:     models.EventStatus,
		TaskId:   t.Id,
		Status:   t.Status,
		Progress: t.Progress,
		Message:  message,
	})
}

// onCommit runs fn under the market lock once the commit has succeeded.
func (tx *txn) onCommit(fn func()) {
	tx.after = append(tx.after, fn)
}

// record appends a billing record without touching the balance.
func (tx *txn) record(accountId string, typ models.BillingType, amount decimal.Decimal, currency, taskId, description string) *models.BillingRecord {
	rec := &models.BillingRecord{
		Id:          newId("bill_"),
		AccountId:   accountId,
		Type:        typ,
		Amount:      amount,
		Currency:    currency,
		TaskId:      taskId,
		Description: description,
		CreatedAt:   tx.m.now(),
	}
	tx.records = append(tx.records, rec)
	return rec
}

func (tx *txn) credit(accountId string, typ models.BillingType, amount decimal.Decimal, currency, taskId, description string) *models.BillingRecord {
	b := tx.balance(accountId)
	b.Add(currency, amount)
	b.UpdatedAt = tx.m.now()
	return tx.record(accountId, typ, amount, currency, taskId, description)
}

// debit takes amount from the balance or fails with INSUFFICIENT_FUNDS.
// Auto top-up runs after a successful debit.
func (tx *txn) debit(accountId string, typ models.BillingType, amount decimal.Decimal, currency, taskId, description string) (*models.BillingRecord, error) {
	b := tx.balance(accountId)
	available := b.Get(currency)
	if available.LessThan(amount) {
		return nil, models.ErrInsufficientFunds(amount, available, currency)
	}
	b.Add(currency, amount.Neg())
	b.UpdatedAt = tx.m.now()
	rec := tx.record(accountId, typ, amount.Neg(), currency, taskId, description)
	tx.autoTopup(accountId, currency)
	return rec, nil
}

func (tx *txn) autoTopup(accountId, currency string) {
	acct, ok := tx.accounts[accountId]
	if !ok {
		if acct, ok = tx.m.accounts[accountId]; !ok {
			return
		}
	}
	pm := acct.PaymentMethod
	if !pm.AutoTopup || pm.PreferredCurrency != currency || !pm.TopupAmount.IsPositive() {
		return
	}
	if !tx.balance(accountId).Get(currency).LessThan(pm.TopupThreshold) {
		return
	}
	tx.credit(accountId, models.BillingDeposit, pm.TopupAmount, currency, "", "auto-topup")
}

func (tx *txn) commit() error {
	m := tx.m
	b := m.store.NewBatch()
	for id, t := range tx.tasks {
		b.Put(constants.KeyPrefixTask+id, t)
	}
	for id, r := range tx.resources {
		b.Put(constants.KeyPrefixResource+id, r)
	}
	for _, id := range tx.removed {
		b.Delete(constants.KeyPrefixResource + id)
	}
	for id, p := range tx.providers {
		b.Put(constants.KeyPrefixProvider+id, p)
	}
	for id, a := range tx.accounts {
		b.Put(constants.KeyPrefixAccount+id, a)
	}
	for id, bal := range tx.balances {
		b.Put(constants.KeyPrefixBalance+id, bal)
	}
	for id, s := range tx.stakes {
		b.Put(constants.KeyPrefixStake+id, s)
	}
	for id, p := range tx.payouts {
		b.Put(constants.KeyPrefixPayout+id, p)
	}
	for id, inv := range tx.invoices {
		b.Put(constants.KeyPrefixInvoice+id, inv)
	}
	for id, l := range tx.logs {
		b.Put(constants.KeyPrefixLogs+id, l)
	}
	for id, s := range tx.samples {
		b.Put(constants.KeyPrefixMetrics+id, s)
	}
	for _, rec := range tx.records {
		b.Put(constants.KeyPrefixBilling+rec.Id, rec)
	}
	for _, ev := range tx.slashes {
		b.Put(constants.KeyPrefixSlash+ev.Id, ev)
	}
	if err := m.store.Write(b); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for id, t := range tx.tasks {
		m.tasks[id] = t
	}
	for id, r := range tx.resources {
		m.resources[id] = r
	}
	for _, id := range tx.removed {
		delete(m.resources, id)
	}
	for id, p := range tx.providers {
		m.providers[id] = p
	}
	for id, a := range tx.accounts {
		m.accounts[id] = a
	}
	for id, bal := range tx.balances {
		m.balances[id] = bal
	}
	for id, s := range tx.stakes {
		m.stakes[id] = s
	}
	for id, p := range tx.payouts {
		m.payouts[id] = p
	}
	for id, inv := range tx.invoices {
		m.invoices[id] = inv
	}
	for id, l := range tx.logs {
		m.logs[id] = l
	}
	for id, s := range tx.samples {
		m.samples[id] = s
	}
	for _, rec := range tx.records {
		m.billing[rec.AccountId] = append(m.billing[rec.AccountId], rec)
	}
	for _, ev := range tx.slashes {
		m.slashes[ev.ProviderId] = append(m.slashes[ev.ProviderId], ev)
	}
	for _, evt := range tx.events {
		m.publisher.Publish(evt)
	}
	for _, fn := range tx.after {
		fn()
	}
	return nil
}
