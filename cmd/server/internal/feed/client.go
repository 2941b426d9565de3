package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/pkg/models"
)

// TickHandler receives every successfully decoded tick. The client calls
// it inline from the read loop, so it must not block; the ingest fanout's
// Dispatch satisfies that.
type TickHandler func(tick models.Tick)

// exchangeTrade is the upstream trade event wire format. Price arrives
// as a decimal string, trade time as unix milliseconds.
type exchangeTrade struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Client maintains the single outbound connection to the exchange price
// stream. Connection loss is recovered with a fixed backoff, forever;
// only a malformed endpoint is fatal, and only at construction.
type Client struct {
	url     string
	backoff time.Duration
	dialer  Dialer
	clock   Clock
	logger  *zap.Logger
	handler TickHandler
}

func NewClient(rawURL string, backoff time.Duration, dialer Dialer, clock Clock, logger *zap.Logger, handler TickHandler) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed url %q must use ws or wss scheme", rawURL)
	}

	return &Client{
		url:     rawURL,
		backoff: backoff,
		dialer:  dialer,
		clock:   clock,
		logger:  logger,
		handler: handler,
	}, nil
}

// Run blocks until ctx is cancelled, dialing and reading the stream in a
// reconnect loop.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.logger.Warn("Feed dial failed, retrying",
				zap.String("url", c.url),
				zap.Duration("backoff", c.backoff),
				zap.Error(err))
			c.clock.Sleep(c.backoff)
			continue
		}

		c.logger.Info("Feed connected", zap.String("url", c.url))
		c.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Feed disconnected, reconnecting", zap.Duration("backoff", c.backoff))
		c.clock.Sleep(c.backoff)
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	// Unblock ReadMessage on shutdown by closing the connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		tick, err := c.decode(payload)
		if err != nil {
			c.logger.Warn("Dropping undecodable feed message", zap.Error(err))
			continue
		}

		c.handler(tick)
	}
}

func (c *Client) decode(payload []byte) (models.Tick, error) {
	var msg exchangeTrade
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.Tick{}, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Symbol == "" {
		return models.Tick{}, fmt.Errorf("message has no symbol")
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("unparseable price %q: %w", msg.Price, err)
	}

	ts := c.clock.Now()
	if msg.TradeTime > 0 {
		ts = time.UnixMilli(msg.TradeTime)
	}

	return models.Tick{Symbol: msg.Symbol, Price: price, Timestamp: ts}, nil
}
