package computing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/google/uuid"
	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/internal/store"
	"github.com/shopspring/decimal"
)

type Options struct {
	ProtocolFeeRate  decimal.Decimal
	SlashRate        decimal.Decimal
	MinimumStake     decimal.Decimal
	StakeCurrency    string
	PendingTTL       time.Duration
	HeartbeatTimeout time.Duration
	MaxLogLines      int
	Now              func() time.Time
}

func DefaultOptions() Options {
	return Options{
		ProtocolFeeRate:  decimal.RequireFromString("0.05"),
		SlashRate:        decimal.RequireFromString("0.1"),
		MinimumStake:     decimal.NewFromInt(100),
		StakeCurrency:    constants.CurrencyUSDC,
		PendingTTL:       24 * time.Hour,
		HeartbeatTimeout: 2 * time.Minute,
		MaxLogLines:      10000,
	}
}

// Publisher receives task events after the change behind them is stored.
type Publisher interface {
	Publish(evt models.TaskEvent)
}

// PayoutDispatcher hands a pending payout to whatever settles it.
type PayoutDispatcher interface {
	Dispatch(payoutId string) error
}

// Archiver copies an invoice to long-term storage and returns its URL.
type Archiver interface {
	ArchiveInvoice(inv *models.Invoice) (string, error)
}

// Market owns every registry. All state changes go through a txn while
// holding mu.
type Market struct {
	mu    sync.Mutex
	store *store.Store
	opts  Options
	now   func() time.Time

	publisher  Publisher
	dispatcher PayoutDispatcher
	archiver   Archiver

	tasks     map[string]*models.Task
	resources map[string]*models.Resource
	providers map[string]*models.Provider
	accounts  map[string]*models.AccountRecord
	apiKeys   map[string]string
	balances  map[string]*models.Balance
	stakes    map[string]*models.StakePosition
	payouts   map[string]*models.Payout
	invoices  map[string]*models.Invoice
	logs      map[string][]models.LogLine
	samples   map[string][]models.MetricSample
	billing   map[string][]*models.BillingRecord
	slashes   map[string][]*models.SlashEvent
}

func NewMarket(s *store.Store, opts Options, publisher Publisher) (*Market, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StakeCurrency == "" {
		opts.StakeCurrency = constants.CurrencyUSDC
	}
	if opts.MaxLogLines <= 0 {
		opts.MaxLogLines = DefaultOptions().MaxLogLines
	}
	if publisher == nil {
		publisher = NewHub()
	}
	m := &Market{
		store:     s,
		opts:      opts,
		now:       opts.Now,
		publisher: publisher,
		tasks:     map[string]*models.Task{},
		resources: map[string]*models.Resource{},
		providers: map[string]*models.Provider{},
		accounts:  map[string]*models.AccountRecord{},
		apiKeys:   map[string]string{},
		balances:  map[string]*models.Balance{},
		stakes:    map[string]*models.StakePosition{},
		payouts:   map[string]*models.Payout{},
		invoices:  map[string]*models.Invoice{},
		logs:      map[string][]models.LogLine{},
		samples:   map[string][]models.MetricSample{},
		billing:   map[string][]*models.BillingRecord{},
		slashes:   map[string][]*models.SlashEvent{},
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Market) SetDispatcher(d PayoutDispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatcher = d
}

func (m *Market) SetArchiver(a Archiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiver = a
}

func (m *Market) Options() Options {
	return m.opts
}

func loadInto[T any](s *store.Store, prefix string, fn func(id string, v *T)) error {
	return s.Iterate(prefix, func(key string, value []byte) error {
		v := new(T)
		if err := json.Unmarshal(value, v); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		fn(strings.TrimPrefix(key, prefix), v)
		return nil
	})
}

func (m *Market) load() error {
	steps := []error{
		loadInto(m.store, constants.KeyPrefixTask, func(id string, v *models.Task) { m.tasks[id] = v }),
		loadInto(m.store, constants.KeyPrefixResource, func(id string, v *models.Resource) { m.resources[id] = v }),
		loadInto(m.store, constants.KeyPrefixProvider, func(id string, v *models.Provider) { m.providers[id] = v }),
		loadInto(m.store, constants.KeyPrefixAccount, func(id string, v *models.AccountRecord) {
			m.accounts[id] = v
			if v.ApiKeyHash != "" {
				m.apiKeys[v.ApiKeyHash] = id
			}
		}),
		loadInto(m.store, constants.KeyPrefixBalance, func(id string, v *models.Balance) { m.balances[id] = v }),
		loadInto(m.store, constants.KeyPrefixStake, func(id string, v *models.StakePosition) { m.stakes[id] = v }),
		loadInto(m.store, constants.KeyPrefixPayout, func(id string, v *models.Payout) { m.payouts[id] = v }),
		loadInto(m.store, constants.KeyPrefixInvoice, func(id string, v *models.Invoice) { m.invoices[id] = v }),
		loadInto(m.store, constants.KeyPrefixLogs, func(id string, v *[]models.LogLine) { m.logs[id] = *v }),
		loadInto(m.store, constants.KeyPrefixMetrics, func(id string, v *[]models.MetricSample) { m.samples[id] = *v }),
		loadInto(m.store, constants.KeyPrefixBilling, func(id string, v *models.BillingRecord) {
			m.billing[v.AccountId] = append(m.billing[v.AccountId], v)
		}),
		loadInto(m.store, constants.KeyPrefixSlash, func(id string, v *models.SlashEvent) {
			m.slashes[v.ProviderId] = append(m.slashes[v.ProviderId], v)
		}),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	for _, recs := range m.billing {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	}
	logs.GetLogger().Infof("market loaded: %d tasks, %d providers, %d resources, %d accounts",
		len(m.tasks), len(m.providers), len(m.resources), len(m.accounts))
	return nil
}

func newId(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func hashApiKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func validCurrency(c string) bool {
	return c == constants.CurrencyUSDC || c == constants.CurrencyUSDT
}

func (m *Market) CreateAccount(req models.CreateAccountReq) (*models.AccountCredentials, error) {
	if req.Role != models.RoleClient && req.Role != models.RoleProvider {
		return nil, models.ErrInvalidRequest("role must be client or provider")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, models.ErrInvalidRequest("name is required")
	}
	// payouts default to the provider's wallet
	if req.Role == models.RoleProvider && strings.TrimSpace(req.WalletAddress) == "" {
		return nil, models.ErrInvalidRequest("wallet_address is required for providers")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	prefix := constants.ApiKeyPrefixClient
	if req.Role == models.RoleProvider {
		prefix = constants.ApiKeyPrefixProvider
	}
	apiKey := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	acct := &models.AccountRecord{
		Account: models.Account{
			Id:            newId("acct_"),
			Role:          req.Role,
			Name:          req.Name,
			WalletAddress: req.WalletAddress,
			PaymentMethod: models.PaymentMethod{PreferredCurrency: constants.CurrencyUSDC},
			CreatedAt:     now,
		},
		ApiKeyHash: hashApiKey(apiKey),
	}

	tx := m.begin()
	if req.Role == models.RoleProvider {
		p := &models.Provider{
			Id:            newId("prov_"),
			AccountId:     acct.Id,
			Name:          req.Name,
			Location:      req.Location,
			WalletAddress: req.WalletAddress,
			Status:        models.ProviderOffline,
			CreatedAt:     now,
		}
		acct.ProviderId = p.Id
		tx.putProvider(p)
		tx.stake(p.Id).UpdatedAt = now
	}
	tx.putAccount(acct)
	tx.balance(acct.Id).UpdatedAt = now
	if err := tx.commit(); err != nil {
		return nil, err
	}
	m.apiKeys[acct.ApiKeyHash] = acct.Id

	logs.GetLogger().Infof("account created: %s role: %s", acct.Id, acct.Role)
	view := acct.Account
	return &models.AccountCredentials{Account: &view, ApiKey: apiKey}, nil
}

// Authenticate resolves an API key to its account.
func (m *Market) Authenticate(apiKey string) (*models.Account, error) {
	if apiKey == "" {
		return nil, models.ErrAuthentication("missing api key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.apiKeys[hashApiKey(apiKey)]
	if !ok {
		return nil, models.ErrAuthentication("invalid api key")
	}
	acct := m.accounts[id].Account
	return &acct, nil
}

func (m *Market) GetAccount(id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound("account", id)
	}
	acct := a.Account
	return &acct, nil
}

func (m *Market) ListAccounts() *models.AccountList {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := &models.AccountList{Accounts: []*models.Account{}}
	for _, a := range m.accounts {
		acct := a.Account
		list.Accounts = append(list.Accounts, &acct)
	}
	sort.Slice(list.Accounts, func(i, j int) bool {
		return list.Accounts[i].CreatedAt.Before(list.Accounts[j].CreatedAt)
	})
	list.Total = len(list.Accounts)
	return list
}
