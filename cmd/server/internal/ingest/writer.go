package ingest

import (
	"context"
	"fmt"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
	"github.com/phatch9/drcrypt/pkg/models"
)

// Writer appends every tick to the durable store. A failed append loses
// that tick; there is no retry queue, the feed keeps flowing.
type Writer struct {
	store repository.TickStore
}

var _ Sink = (*Writer)(nil)

func NewWriter(store repository.TickStore) *Writer {
	return &Writer{store: store}
}

func (w *Writer) Name() string { return "tick-writer" }

func (w *Writer) Handle(ctx context.Context, tick models.Tick) error {
	if err := w.store.Append(ctx, tick); err != nil {
		return fmt.Errorf("tick write failed: %w", err)
	}
	return nil
}
