package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/pkg/models"
)

// Sink consumes normalized ticks from the ingestion path. A sink must
// absorb its own transient failures; returned errors are logged, never
// propagated back to the feed.
type Sink interface {
	Name() string
	Handle(ctx context.Context, tick models.Tick) error
}

// Fanout is the single hand-off point between the upstream feed client
// and its sinks. Each sink gets its own buffered channel and goroutine,
// so a stalled durable write never delays the broker publish and vice
// versa. Hand-off is non-blocking: when a sink's buffer is full the tick
// is dropped for that sink. In real-time prices, "latest" is better
// than "all".
type Fanout struct {
	logger *zap.Logger
	lanes  []*lane
	wg     sync.WaitGroup

	// Guards the lane channels against Dispatch racing Close: the feed
	// goroutine may still be delivering a final tick while shutdown runs.
	mu     sync.RWMutex
	closed bool
}

type lane struct {
	sink Sink
	ch   chan models.Tick
}

func NewFanout(logger *zap.Logger, bufSize int, sinks ...Sink) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		f.lanes = append(f.lanes, &lane{sink: s, ch: make(chan models.Tick, bufSize)})
	}
	return f
}

// Start spawns one worker per sink. Workers exit when Close is called
// and their channel drains.
func (f *Fanout) Start(ctx context.Context) {
	for _, l := range f.lanes {
		f.wg.Add(1)
		go f.run(ctx, l)
	}
}

func (f *Fanout) run(ctx context.Context, l *lane) {
	defer f.wg.Done()
	for tick := range l.ch {
		if err := l.sink.Handle(ctx, tick); err != nil {
			f.logger.Error("Sink error",
				zap.String("sink", l.sink.Name()),
				zap.String("symbol", tick.Symbol),
				zap.Error(err))
		}
	}
}

// Dispatch hands one tick to every sink without blocking the caller.
// Ticks arriving after Close are dropped.
func (f *Fanout) Dispatch(tick models.Tick) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, l := range f.lanes {
		select {
		case l.ch <- tick:
		default:
			f.logger.Warn("Dropping tick for slow sink",
				zap.String("sink", l.sink.Name()),
				zap.String("symbol", tick.Symbol))
		}
	}
}

// Close stops accepting ticks and waits for the workers to drain.
// Safe to call more than once.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, l := range f.lanes {
		close(l.ch)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
