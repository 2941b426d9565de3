package repository

import (
	"context"
	"errors"
	"time"

	"github.com/phatch9/drcrypt/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on unique-constraint violations (e.g. username taken).
	ErrDuplicate = errors.New("record already exists")
	// ErrCacheMiss is returned by cache reads when no live entry exists.
	ErrCacheMiss = errors.New("cache miss")
)

// TickStore is the durable, append-only, time-ordered tick store.
type TickStore interface {
	Append(ctx context.Context, tick models.Tick) error
	// RecentBySymbol returns up to limit most recent ticks for symbol,
	// descending by timestamp. Callers needing ascending order reverse it.
	RecentBySymbol(ctx context.Context, symbol string, limit int) ([]models.Tick, error)
}

// HistoryCache is the short-TTL cache in front of the tick store.
type HistoryCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Publisher pushes serialized ticks onto the broker channel, fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscription is one live broker subscription. Messages is closed when
// the subscription is torn down; Close is safe to call more than once.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// SubscriberFactory mints independent subscriptions, one per gateway
// session. Sessions never share a subscription handle.
type SubscriberFactory interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
}

// TradeStore persists the trade ledger.
type TradeStore interface {
	RecordTrade(ctx context.Context, trade models.Trade) (models.Trade, error)
	// RecentTradesByUser returns up to limit trades, newest first.
	RecentTradesByUser(ctx context.Context, userID int64, limit int) ([]models.Trade, error)
}
