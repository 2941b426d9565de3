package feedsim

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// for deterministic values
type Rand interface {
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }

// tradeMessage mirrors the upstream exchange wire format the server's
// feed client decodes: price as a decimal string, time in unix millis.
type tradeMessage struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Simulator is a stand-in exchange: it serves the real feed's websocket
// wire format with a random-walk price, so the server can run end to
// end without exchange connectivity.
type Simulator struct {
	logger   *zap.Logger
	symbol   string
	interval time.Duration
	rand     Rand
	clock    Clock

	mu    sync.Mutex
	price float64
	conns map[net.Conn]bool
}

func New(logger *zap.Logger, symbol string, basePrice float64, interval time.Duration, rnd Rand, clock Clock) *Simulator {
	return &Simulator{
		logger:   logger,
		symbol:   symbol,
		interval: interval,
		rand:     rnd,
		clock:    clock,
		price:    basePrice,
		conns:    make(map[net.Conn]bool),
	}
}

// NextMessage advances the random walk one step and returns the wire
// payload for it.
func (s *Simulator) NextMessage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	fluctuation := (s.rand.Float64() * 10) - 5
	s.price += fluctuation
	if s.price < 1 {
		s.price = 1
	}

	payload, _ := json.Marshal(tradeMessage{
		Event:     "trade",
		Symbol:    s.symbol,
		Price:     strconv.FormatFloat(s.price, 'f', 2, 64),
		TradeTime: s.clock.Now().UnixMilli(),
	})
	return payload
}

// Run emits one message per interval to every connected client until
// ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("Simulator started", zap.String("symbol", s.symbol))

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		default:
			s.broadcast(s.NextMessage())
			s.clock.Sleep(s.interval)
		}
	}
}

func (s *Simulator) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := wsutil.WriteServerText(conn, payload); err != nil {
			delete(s.conns, conn)
			conn.Close()
		}
	}
}

func (s *Simulator) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

// ConnCount reports the number of attached clients.
func (s *Simulator) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	s.logger.Info("Feed client attached", zap.String("remote", conn.RemoteAddr().String()))

	// Reader goroutine exists only to notice the peer going away.
	go func() {
		for {
			header, err := ws.ReadHeader(conn)
			if err != nil || header.OpCode == ws.OpClose {
				break
			}
			if header.Length > 0 {
				if _, err := io.CopyN(io.Discard, conn, header.Length); err != nil {
					break
				}
			}
		}
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
}
