// Package testutil holds in-memory stand-ins for the repositories and the
// balance oracle, for service and handler tests.
package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/oracle"
	"github.com/tradebot/backoffice/internal/repository"
)

// MockUserRepository is an in-memory user store.
type MockUserRepository struct {
	mu    sync.Mutex
	Users map[string]*domain.User
	// Subs, when set, gets an empty subscription row for every created user.
	Subs *MockSubscriptionRepository
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{Users: make(map[string]*domain.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	c := *u
	m.Users[u.ID] = &c
	m.mu.Unlock()
	if m.Subs != nil {
		m.Subs.Put(&domain.Subscription{UserID: u.ID, FakeProfits: decimal.Zero, WeeklyDeposits: []domain.WeeklyDeposit{}})
	}
	return nil
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *MockUserRepository) Exists(ctx context.Context, email string) (bool, error) {
	u, _ := m.FindByEmail(ctx, email)
	return u != nil, nil
}

func (m *MockUserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]*domain.User, 0, len(m.Users))
	for _, u := range m.Users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Users), nil
}

func (m *MockUserRepository) UpdateWallet(ctx context.Context, id, wallet string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return domain.ErrNotFound("user not found")
	}
	u.WalletAddress = wallet
	u.UpdatedAt = now
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Users, id)
	return nil
}

// AddUser stores a user with a wallet and returns it.
func (m *MockUserRepository) AddUser(id, wallet string) *domain.User {
	u := &domain.User{ID: id, Email: id + "@example.com", Role: domain.RoleUser, WalletAddress: wallet}
	m.Create(context.Background(), u)
	return u
}

// MockPlanRepository is an in-memory plan store.
type MockPlanRepository struct {
	mu    sync.Mutex
	Plans map[string]*domain.Plan
}

func NewMockPlanRepository(plans ...*domain.Plan) *MockPlanRepository {
	m := &MockPlanRepository{Plans: make(map[string]*domain.Plan)}
	for _, p := range plans {
		m.Plans[p.ID] = p
	}
	return m
}

func (m *MockPlanRepository) Create(ctx context.Context, p *domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.Plans[p.ID] = &c
	return nil
}

func (m *MockPlanRepository) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Plans[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (m *MockPlanRepository) List(ctx context.Context, includeArchived bool) ([]*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plans := []*domain.Plan{}
	for _, p := range m.Plans {
		if p.Archived && !includeArchived {
			continue
		}
		c := *p
		plans = append(plans, &c)
	}
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].WeeklyRequiredAmount.Equal(plans[j].WeeklyRequiredAmount) {
			return plans[i].WeeklyRequiredAmount.LessThan(plans[j].WeeklyRequiredAmount)
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

func (m *MockPlanRepository) Revise(ctx context.Context, oldID string, next *domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.Plans[oldID]
	if !ok || old.Archived {
		return domain.ErrNotFound("plan not found or already archived")
	}
	old.Archived = true
	c := *next
	m.Plans[next.ID] = &c
	return nil
}

func (m *MockPlanRepository) Archive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Plans[id]
	if !ok || p.Archived {
		return domain.ErrNotFound("plan not found or already archived")
	}
	p.Archived = true
	return nil
}

func (m *MockPlanRepository) SeedDefaults(ctx context.Context, plans []domain.Plan) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Plans) > 0 {
		return 0, nil
	}
	for i := range plans {
		p := plans[i]
		m.Plans[p.ID] = &p
	}
	return len(plans), nil
}

// MockSubscriptionRepository is an in-memory subscription store. Update
// serialises per store and commits only when mutate succeeds. CommitErr fails
// the write after mutate has run, leaving both the subscription and any
// withdrawal built by UpdateWithWithdrawal unwritten.
type MockSubscriptionRepository struct {
	mu          sync.Mutex
	Subs        map[string]*domain.Subscription
	Withdrawals *MockWithdrawalRepository
	UpdateErr   error
	CommitErr   error
	Updates     int
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{Subs: make(map[string]*domain.Subscription)}
}

// Put stores a copy of sub.
func (m *MockSubscriptionRepository) Put(sub *domain.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subs[sub.UserID] = sub.Clone()
}

func (m *MockSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Subs[userID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (m *MockSubscriptionRepository) ListSubscribedUserIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id, s := range m.Subs {
		if s.Subscribed() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, userID string, mutate func(*domain.Subscription) error) (*domain.Subscription, error) {
	return m.UpdateWithWithdrawal(ctx, userID, func(sub *domain.Subscription) (*domain.Withdrawal, error) {
		return nil, mutate(sub)
	})
}

// UpdateWithWithdrawal holds the store lock until the withdrawal is stored, as
// the row lock does in Postgres.
func (m *MockSubscriptionRepository) UpdateWithWithdrawal(ctx context.Context, userID string, build func(*domain.Subscription) (*domain.Withdrawal, error)) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}

	current, ok := m.Subs[userID]
	if !ok {
		current = &domain.Subscription{UserID: userID, FakeProfits: decimal.Zero, WeeklyDeposits: []domain.WeeklyDeposit{}}
	}
	work := current.Clone()
	w, err := build(work)
	if err != nil {
		return nil, err
	}
	if err := work.CheckConsistency(); err != nil {
		return nil, err
	}
	if m.CommitErr != nil {
		return nil, m.CommitErr
	}
	if w != nil && m.Withdrawals != nil {
		if err := m.Withdrawals.Create(ctx, w); err != nil {
			return nil, err
		}
	}
	m.Subs[userID] = work
	m.Updates++
	return work.Clone(), nil
}

func (m *MockSubscriptionRepository) Stats(ctx context.Context) (domain.SubscriptionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := domain.SubscriptionStats{TotalFakeProfits: decimal.Zero}
	for _, s := range m.Subs {
		if s.Subscribed() {
			st.Subscribed++
			if s.BotActive {
				st.ActiveBots++
			}
		}
		st.TotalFakeProfits = st.TotalFakeProfits.Add(s.FakeProfits)
	}
	return st, nil
}

// MockWithdrawalRepository is an in-memory withdrawal store.
type MockWithdrawalRepository struct {
	mu          sync.Mutex
	Withdrawals map[string]*domain.Withdrawal
}

func NewMockWithdrawalRepository() *MockWithdrawalRepository {
	return &MockWithdrawalRepository{Withdrawals: make(map[string]*domain.Withdrawal)}
}

func (m *MockWithdrawalRepository) Create(ctx context.Context, w *domain.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *w
	m.Withdrawals[w.ID] = &c
	return nil
}

func (m *MockWithdrawalRepository) FindByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.Withdrawals[id]; ok {
		c := *w
		return &c, nil
	}
	return nil, nil
}

func (m *MockWithdrawalRepository) List(ctx context.Context, userID, status string) ([]*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*domain.Withdrawal{}
	for _, w := range m.Withdrawals {
		if (userID == "" || w.UserID == userID) && (status == "" || w.Status == status) {
			c := *w
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *MockWithdrawalRepository) Committed(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, w := range m.Withdrawals {
		if w.UserID != userID || w.CreatedAt.Before(since) {
			continue
		}
		if w.Status == domain.WithdrawalPending || w.Status == domain.WithdrawalApproved {
			sum = sum.Add(w.RequestedAmount)
		}
	}
	return sum, nil
}

func (m *MockWithdrawalRepository) Decide(ctx context.Context, id, status, adminID, note string, at time.Time) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.Withdrawals[id]
	if !ok || w.Status != domain.WithdrawalPending {
		return nil, nil
	}
	w.Status = status
	w.Note = note
	w.DecidedBy = &adminID
	w.DecidedAt = &at
	c := *w
	return &c, nil
}

func (m *MockWithdrawalRepository) PendingStats(ctx context.Context) (int, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, sum := 0, decimal.Zero
	for _, w := range m.Withdrawals {
		if w.Status == domain.WithdrawalPending {
			n++
			sum = sum.Add(w.RequestedAmount)
		}
	}
	return n, sum, nil
}

// MockCacheRepository is an in-memory key/value store.
type MockCacheRepository struct {
	mu      sync.Mutex
	Entries map[string]*repository.CacheEntry
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{Entries: make(map[string]*repository.CacheEntry)}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*repository.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.Entries[key]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[key] = &repository.CacheEntry{Key: key, Data: raw, UpdatedAt: time.Now()}
	return nil
}

// MockOracle serves fixed balances per wallet.
type MockOracle struct {
	mu       sync.Mutex
	Balances map[string]decimal.Decimal
	// Stale marks every cached reading as a degraded fallback.
	Stale bool
	// Err fails every read, LiveErr only live reads.
	Err     error
	LiveErr error
	At      time.Time
}

func NewMockOracle() *MockOracle {
	return &MockOracle{Balances: make(map[string]decimal.Decimal)}
}

// SetBalance sets the balance of wallet.
func (m *MockOracle) SetBalance(wallet, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Balances[strings.ToLower(wallet)] = decimal.RequireFromString(amount)
}

func (m *MockOracle) Balance(ctx context.Context, address string) (oracle.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return oracle.Reading{}, m.Err
	}
	bal, ok := m.Balances[strings.ToLower(address)]
	if !ok {
		return oracle.Reading{}, domain.ErrUpstream("balance is temporarily unavailable", nil)
	}
	return oracle.Reading{Amount: bal, FetchedAt: m.At, Stale: m.Stale}, nil
}

func (m *MockOracle) LiveBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return decimal.Zero, m.Err
	}
	if m.LiveErr != nil {
		return decimal.Zero, m.LiveErr
	}
	bal, ok := m.Balances[strings.ToLower(address)]
	if !ok {
		return decimal.Zero, domain.ErrUpstream("balance is temporarily unavailable", nil)
	}
	return bal, nil
}
