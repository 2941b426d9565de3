package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
	"github.com/phatch9/drcrypt/pkg/models"
)

// MockTickStore simulates the durable tick store.
type MockTickStore struct {
	Mu          sync.Mutex
	Appended    []models.Tick
	AppendErr   error
	RecentTicks []models.Tick // returned newest-first, as the real store does
	RecentErr   error
	RecentCalls int
}

var _ repository.TickStore = (*MockTickStore)(nil)

func (m *MockTickStore) Append(ctx context.Context, tick models.Tick) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Appended = append(m.Appended, tick)
	return nil
}

func (m *MockTickStore) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]models.Tick, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RecentCalls++
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	out := make([]models.Tick, 0, limit)
	for _, t := range m.RecentTicks {
		if t.Symbol != symbol {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockTickStore) AppendedCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Appended)
}

// MockCache simulates the history cache without TTL semantics; TTL
// behavior is covered by miniredis-backed tests.
type MockCache struct {
	Mu       sync.Mutex
	Entries  map[string][]byte
	GetErr   error
	SetErr   error
	GetCalls int
	SetCalls int
}

var _ repository.HistoryCache = (*MockCache)(nil)

func NewMockCache() *MockCache {
	return &MockCache{Entries: make(map[string][]byte)}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if payload, ok := m.Entries[key]; ok {
		return payload, nil
	}
	return nil, repository.ErrCacheMiss
}

func (m *MockCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.SetCalls++
	if m.SetErr != nil {
		return m.SetErr
	}
	m.Entries[key] = payload
	return nil
}

// MockPublisher records broker publishes.
type MockPublisher struct {
	Mu        sync.Mutex
	Published [][]byte
	Channels  []string
	Err       error
}

var _ repository.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Channels = append(m.Channels, channel)
	m.Published = append(m.Published, payload)
	return nil
}

func (m *MockPublisher) PublishedCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Published)
}

// MockSubscription is one fake broker subscription fed by the test.
type MockSubscription struct {
	Ch      chan []byte
	mu      sync.Mutex
	closed  bool
	onClose func()
}

var _ repository.Subscription = (*MockSubscription)(nil)

func NewMockSubscription() *MockSubscription {
	return &MockSubscription{Ch: make(chan []byte, 64)}
}

func (m *MockSubscription) Messages() <-chan []byte { return m.Ch }

func (m *MockSubscription) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.Ch)
	if m.onClose != nil {
		m.onClose()
	}
	return nil
}

func (m *MockSubscription) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockSubscriberFactory mints MockSubscriptions and tracks how many are
// still open, so tests can assert the no-orphaned-subscriptions rule.
type MockSubscriberFactory struct {
	Mu           sync.Mutex
	Subs         []*MockSubscription
	SubscribeErr error
	active       int
}

var _ repository.SubscriberFactory = (*MockSubscriberFactory)(nil)

func (m *MockSubscriberFactory) Subscribe(ctx context.Context, channel string) (repository.Subscription, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	sub := NewMockSubscription()
	sub.onClose = func() {
		m.Mu.Lock()
		m.active--
		m.Mu.Unlock()
	}
	m.Subs = append(m.Subs, sub)
	m.active++
	return sub, nil
}

func (m *MockSubscriberFactory) Active() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.active
}

// MockUserStore keeps accounts in memory.
type MockUserStore struct {
	Mu     sync.Mutex
	Users  map[string]models.User
	nextID int64
}

var _ repository.UserStore = (*MockUserStore)(nil)

func NewMockUserStore() *MockUserStore {
	return &MockUserStore{Users: make(map[string]models.User)}
}

func (m *MockUserStore) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if _, ok := m.Users[username]; ok {
		return models.User{}, repository.ErrDuplicate
	}
	m.nextID++
	user := models.User{ID: m.nextID, Username: username, PasswordHash: passwordHash}
	m.Users[username] = user
	return user, nil
}

func (m *MockUserStore) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	user, ok := m.Users[username]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

// MockTradeStore keeps the ledger in memory, newest first on read.
type MockTradeStore struct {
	Mu     sync.Mutex
	Trades []models.Trade
	Err    error
	nextID int64
}

var _ repository.TradeStore = (*MockTradeStore)(nil)

func (m *MockTradeStore) RecordTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return models.Trade{}, m.Err
	}
	m.nextID++
	trade.ID = m.nextID
	m.Trades = append(m.Trades, trade)
	return trade, nil
}

func (m *MockTradeStore) RecentTradesByUser(ctx context.Context, userID int64, limit int) ([]models.Trade, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]models.Trade, 0, limit)
	for i := len(m.Trades) - 1; i >= 0 && len(out) < limit; i-- {
		if m.Trades[i].UserID == userID {
			out = append(out, m.Trades[i])
		}
	}
	return out, nil
}
