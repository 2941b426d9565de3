package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
)

func newBackends(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisCache_MissThenHit(t *testing.T) {
	_, rdb := newBackends(t)
	cache := repository.NewRedisCache(rdb)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "history:BTCUSDT:5"); !errors.Is(err, repository.ErrCacheMiss) {
		t.Fatalf("Expected ErrCacheMiss, got %v", err)
	}

	if err := cache.Set(ctx, "history:BTCUSDT:5", []byte(`[{"symbol":"BTCUSDT"}]`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	payload, err := cache.Get(ctx, "history:BTCUSDT:5")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(payload) != `[{"symbol":"BTCUSDT"}]` {
		t.Errorf("Payload mismatch: %s", payload)
	}
}

func TestRedisCache_EntryExpires(t *testing.T) {
	mr, rdb := newBackends(t)
	cache := repository.NewRedisCache(rdb)
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"), 60*time.Second)
	mr.FastForward(61 * time.Second)

	if _, err := cache.Get(ctx, "k"); !errors.Is(err, repository.ErrCacheMiss) {
		t.Errorf("Expected miss after TTL, got %v", err)
	}
}

func TestRedisBus_PublishReachesSubscription(t *testing.T) {
	_, rdb := newBackends(t)
	bus := repository.NewRedisBus(rdb)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "price_updates")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	if err := bus.Publish(ctx, "price_updates", []byte(`{"symbol":"BTCUSDT","price":1}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if string(msg) != `{"symbol":"BTCUSDT","price":1}` {
			t.Errorf("Payload mismatch: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for published message")
	}
}

func TestRedisBus_SubscriptionsAreIndependent(t *testing.T) {
	_, rdb := newBackends(t)
	bus := repository.NewRedisBus(rdb)
	ctx := context.Background()

	first, err := bus.Subscribe(ctx, "price_updates")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	second, err := bus.Subscribe(ctx, "price_updates")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer second.Close()

	// Closing one subscription must not end the other.
	first.Close()

	if err := bus.Publish(ctx, "price_updates", []byte("tick")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg, ok := <-second.Messages():
		if !ok {
			t.Fatal("Second subscription closed with the first")
		}
		if string(msg) != "tick" {
			t.Errorf("Payload mismatch: %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message on surviving subscription")
	}
}

func TestRedisBus_CloseEndsMessages(t *testing.T) {
	_, rdb := newBackends(t)
	bus := repository.NewRedisBus(rdb)

	sub, err := bus.Subscribe(context.Background(), "price_updates")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Close()

	select {
	case _, ok := <-sub.Messages():
		if ok {
			// A message buffered before Close is fine; the channel
			// must still close right after.
			if _, ok := <-sub.Messages(); ok {
				t.Error("Messages channel should close after Close")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Messages channel did not close")
	}
}
