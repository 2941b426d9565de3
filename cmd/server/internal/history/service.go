package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
	"github.com/phatch9/drcrypt/pkg/models"
)

// Service is the cache-aside read path for bounded historical queries.
// The cache is consulted first; on miss the durable store supplies the
// most recent ticks (which it returns newest-first), the result is
// reversed to ascending order, cached under a short TTL, and returned.
// Cache failures degrade silently to the store; only a store failure
// with no cache hit surfaces to the caller.
type Service struct {
	ticks  repository.TickStore
	cache  repository.HistoryCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewService(ticks repository.TickStore, cache repository.HistoryCache, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{ticks: ticks, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(symbol string, limit int) string {
	return fmt.Sprintf("history:%s:%d", symbol, limit)
}

// History returns up to limit most recent ticks for symbol, ascending
// by timestamp. An unknown symbol yields an empty (still cacheable)
// result, not an error.
func (s *Service) History(ctx context.Context, symbol string, limit int) ([]models.Tick, error) {
	key := cacheKey(symbol, limit)

	if payload, err := s.cache.Get(ctx, key); err == nil {
		ticks := make([]models.Tick, 0)
		if jsonErr := json.Unmarshal(payload, &ticks); jsonErr == nil {
			return ticks, nil
		}
		s.logger.Warn("Discarding corrupt cache entry", zap.String("key", key))
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("History cache read failed", zap.String("key", key), zap.Error(err))
	}

	ticks, err := s.ticks.RecentBySymbol(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}

	// Store returns newest-first for efficient "most recent N"; callers
	// get ascending order.
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}

	if payload, jsonErr := json.Marshal(ticks); jsonErr == nil {
		if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
			s.logger.Warn("History cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return ticks, nil
}
