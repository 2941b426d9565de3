package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
	"github.com/phatch9/drcrypt/pkg/models"
)

// Publisher pushes each tick onto the broker channel as flat JSON.
// The channel is fire-and-forget: no buffering, no retry, and a publish
// while the broker is down is a logged no-op.
type Publisher struct {
	bus     repository.Publisher
	channel string
}

var _ Sink = (*Publisher)(nil)

func NewPublisher(bus repository.Publisher, channel string) *Publisher {
	return &Publisher{bus: bus, channel: channel}
}

func (p *Publisher) Name() string { return "broker-publisher" }

func (p *Publisher) Handle(ctx context.Context, tick models.Tick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("tick marshal failed: %w", err)
	}
	if err := p.bus.Publish(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("tick publish failed: %w", err)
	}
	return nil
}
