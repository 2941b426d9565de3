package gateway

import (
	"context"
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
)

// Gateway accepts client websocket connections and relays the broker
// channel to each one. Every accepted connection gets its own
// subscription from the injected factory; sessions are fully
// independent of one another.
type Gateway struct {
	subs    repository.SubscriberFactory
	channel string
	logger  *zap.Logger
}

func New(subs repository.SubscriberFactory, channel string, logger *zap.Logger) *Gateway {
	return &Gateway{subs: subs, channel: channel, logger: logger}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clients may pass ?symbol=... on connect. The relay is single-topic,
	// so the parameter is informational only; it is logged, not filtered on.
	symbol := r.URL.Query().Get("symbol")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	// The request context dies when this handler returns; the
	// subscription lives as long as the session, so it gets its own.
	sub, err := g.subs.Subscribe(context.Background(), g.channel)
	if err != nil {
		g.logger.Error("Broker subscribe failed, dropping connection",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		conn.Close()
		return
	}

	session := NewSession(conn, sub, g.logger)
	g.logger.Info("Client connected",
		zap.String("session", session.ID()),
		zap.String("symbol", symbol))
	session.Start()
}
