package gateway

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
)

const maxMessageSize = 64 * 1024

// SessionState tracks the session lifecycle. Transitions only move
// forward: Connecting -> Open -> Closing -> Closed.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Session represents one live client connection and the one broker
// subscription it owns. The subscription is created before the session
// starts and released exactly once, from whichever exit path fires
// first (socket close, write failure, or subscription failure). A
// session never outlives its socket and never shares its subscription.
type Session struct {
	conn   net.Conn
	sub    repository.Subscription
	send   chan []byte
	pong   chan []byte
	logger *zap.Logger

	state    atomic.Int32
	teardown sync.Once
	done     chan struct{}

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewSession(conn net.Conn, sub repository.Subscription, logger *zap.Logger) *Session {
	s := &Session{
		conn:       conn,
		sub:        sub,
		send:       make(chan []byte, 256),
		pong:       make(chan []byte, 1),
		logger:     logger,
		done:       make(chan struct{}),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() string { return s.conn.RemoteAddr().String() }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Start() {
	s.advance(StateOpen)
	go s.relayPump()
	go s.writePump()
	go s.readPump()
}

// advance moves the state forward, never backward.
func (s *Session) advance(to SessionState) {
	for {
		cur := s.state.Load()
		if cur >= int32(to) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

// Close triggers teardown from outside, e.g. server shutdown.
func (s *Session) Close() { s.release() }

// release is the single convergence point for every terminal event.
// Closing the subscription ends relayPump, which closes the send
// channel, which makes writePump send a close frame and close the
// socket, which ends readPump.
func (s *Session) release() {
	s.teardown.Do(func() {
		s.advance(StateClosing)
		if err := s.sub.Close(); err != nil {
			s.logger.Debug("Subscription close", zap.Error(err))
		}
	})
}

// relayPump forwards every broker message to the send buffer in arrival
// order. It is the only sender on s.send and closes it on exit. A full
// buffer means a slow client; the message is dropped for this session
// only, nothing upstream blocks.
func (s *Session) relayPump() {
	defer func() {
		close(s.send)
		// The subscription may have failed on its own; converge.
		s.release()
	}()

	for msg := range s.sub.Messages() {
		if s.State() != StateOpen {
			continue // draining during Closing, no further sends
		}
		select {
		case s.send <- msg:
		default:
			s.logger.Warn("Dropping tick for slow client", zap.String("session", s.ID()))
		}
	}
}

func (s *Session) readPump() {
	defer s.release()

	s.conn.SetReadDeadline(time.Now().Add(s.pongWait))

	for {
		header, err := ws.ReadHeader(s.conn)
		if err != nil {
			return
		}

		if header.Length > int64(maxMessageSize) {
			s.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			return
		}
		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		case ws.OpPing:
			// Pongs must echo the ping payload. writePump is the only
			// writer, so hand it off; if one is already queued the peer
			// gets that reply instead.
			select {
			case s.pong <- payload:
			default:
			}
		default:
			// The live-stream path has no client->server schema;
			// inbound text frames are ignored.
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.advance(StateClosed)
		close(s.done)
		// Write failure path: make sure the subscription goes too.
		s.release()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if !ok {
				s.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(s.conn, msg); err != nil {
				return
			}

		case payload := <-s.pong:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPong, payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
