package ingest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/ingest"
	"github.com/phatch9/drcrypt/pkg/models"
)

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []models.Tick
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(ctx context.Context, tick models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, tick)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocked" }

func (s *blockingSink) Handle(ctx context.Context, tick models.Tick) error {
	<-s.release
	return nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	f := ingest.NewFanout(zap.NewNop(), 16, a, b)
	f.Start(context.Background())
	defer f.Close()

	for i := 0; i < 3; i++ {
		f.Dispatch(models.Tick{Symbol: "BTCUSDT", Price: float64(i)})
	}

	waitFor(t, func() bool { return a.count() == 3 && b.count() == 3 },
		"Both sinks should receive all three ticks")
}

func TestFanout_PreservesOrderPerSink(t *testing.T) {
	a := &recordingSink{name: "a"}
	f := ingest.NewFanout(zap.NewNop(), 16, a)
	f.Start(context.Background())

	for i := 0; i < 10; i++ {
		f.Dispatch(models.Tick{Symbol: "BTCUSDT", Price: float64(i)})
	}
	f.Close()

	if a.count() != 10 {
		t.Fatalf("Expected 10 ticks, got %d", a.count())
	}
	for i, tick := range a.got {
		if tick.Price != float64(i) {
			t.Errorf("Tick %d out of order: price %f", i, tick.Price)
		}
	}
}

func TestFanout_DispatchDuringCloseDoesNotPanic(t *testing.T) {
	// A tick decoded just before the feed drops can reach Dispatch while
	// shutdown is closing the lanes; that must be a silent drop, not a
	// send on a closed channel.
	for i := 0; i < 200; i++ {
		f := ingest.NewFanout(zap.NewNop(), 4, &recordingSink{name: "a"})
		f.Start(context.Background())

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				f.Dispatch(models.Tick{Symbol: "BTCUSDT", Price: float64(j)})
			}
		}()

		f.Close()
		<-done
	}
}

func TestFanout_CloseIsIdempotent(t *testing.T) {
	f := ingest.NewFanout(zap.NewNop(), 4, &recordingSink{name: "a"})
	f.Start(context.Background())
	f.Close()
	f.Close()

	// Late ticks after Close are dropped, not delivered or panicked on.
	f.Dispatch(models.Tick{Symbol: "BTCUSDT", Price: 1})
}

func TestFanout_BlockedSinkDoesNotStallOthers(t *testing.T) {
	blocked := &blockingSink{release: make(chan struct{})}
	healthy := &recordingSink{name: "healthy"}
	f := ingest.NewFanout(zap.NewNop(), 64, blocked, healthy)
	f.Start(context.Background())

	for i := 0; i < 50; i++ {
		f.Dispatch(models.Tick{Symbol: "BTCUSDT", Price: float64(i)})
	}

	waitFor(t, func() bool { return healthy.count() == 50 },
		"Healthy sink should keep receiving while the other is blocked")

	close(blocked.release)
	f.Close()
}
