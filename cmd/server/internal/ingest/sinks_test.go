package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/phatch9/drcrypt/cmd/server/internal/ingest"
	"github.com/phatch9/drcrypt/cmd/server/internal/testutils"
	"github.com/phatch9/drcrypt/pkg/models"
)

func TestWriter_AppendsToStore(t *testing.T) {
	store := &testutils.MockTickStore{}
	w := ingest.NewWriter(store)

	tick := models.Tick{Symbol: "BTCUSDT", Price: 43000.5, Timestamp: time.Unix(1700000000, 0)}
	if err := w.Handle(context.Background(), tick); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if store.AppendedCount() != 1 {
		t.Fatalf("Expected 1 appended tick, got %d", store.AppendedCount())
	}
	if store.Appended[0] != tick {
		t.Errorf("Stored tick mismatch: %+v", store.Appended[0])
	}
}

func TestWriter_SurfacesStoreErrorForLogging(t *testing.T) {
	store := &testutils.MockTickStore{AppendErr: errors.New("db down")}
	w := ingest.NewWriter(store)

	if err := w.Handle(context.Background(), models.Tick{Symbol: "BTCUSDT"}); err == nil {
		t.Error("Expected error when the store is down")
	}
}

func TestPublisher_PublishesFlatJSON(t *testing.T) {
	bus := &testutils.MockPublisher{}
	p := ingest.NewPublisher(bus, "price_updates")

	tick := models.Tick{Symbol: "BTCUSDT", Price: 43000.5, Timestamp: time.Unix(1700000000, 0).UTC()}
	if err := p.Handle(context.Background(), tick); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if bus.PublishedCount() != 1 {
		t.Fatalf("Expected 1 publish, got %d", bus.PublishedCount())
	}
	if bus.Channels[0] != "price_updates" {
		t.Errorf("Expected channel price_updates, got %s", bus.Channels[0])
	}

	var decoded models.Tick
	if err := json.Unmarshal(bus.Published[0], &decoded); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}
	if decoded.Symbol != "BTCUSDT" || decoded.Price != 43000.5 {
		t.Errorf("Payload mismatch: %+v", decoded)
	}
}

func TestPublisher_BrokerDownIsNotFatal(t *testing.T) {
	bus := &testutils.MockPublisher{Err: errors.New("broker down")}
	p := ingest.NewPublisher(bus, "price_updates")

	// The error is for the fanout to log; nothing panics, nothing retries.
	if err := p.Handle(context.Background(), models.Tick{Symbol: "BTCUSDT"}); err == nil {
		t.Error("Expected error to be reported for logging")
	}
	if bus.PublishedCount() != 0 {
		t.Errorf("Expected no successful publishes, got %d", bus.PublishedCount())
	}
}
