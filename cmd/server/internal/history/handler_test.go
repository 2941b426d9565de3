package history_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/history"
	"github.com/phatch9/drcrypt/cmd/server/internal/testutils"
	"github.com/phatch9/drcrypt/pkg/models"
)

func newHandler(store *testutils.MockTickStore, cache *testutils.MockCache) *history.Handler {
	svc := history.NewService(store, cache, time.Minute, zap.NewNop())
	return history.NewHandler(svc, zap.NewNop())
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_MissingSymbolIs400(t *testing.T) {
	store := &testutils.MockTickStore{}
	cache := testutils.NewMockCache()
	h := newHandler(store, cache)

	rec := get(h, "/prices/history")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if store.RecentCalls != 0 {
		t.Error("Validation failure must not touch the store")
	}
	if cache.GetCalls != 0 {
		t.Error("Validation failure must not touch the cache")
	}
}

func TestHandler_InvalidLimitIs400(t *testing.T) {
	store := &testutils.MockTickStore{}
	h := newHandler(store, testutils.NewMockCache())

	for _, target := range []string{
		"/prices/history?symbol=BTCUSDT&limit=0",
		"/prices/history?symbol=BTCUSDT&limit=-3",
		"/prices/history?symbol=BTCUSDT&limit=abc",
	} {
		if rec := get(h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
	if store.RecentCalls != 0 {
		t.Error("Validation failure must not touch the store")
	}
}

func TestHandler_StoreFailureIs500(t *testing.T) {
	store := &testutils.MockTickStore{RecentErr: errors.New("pg down")}
	h := newHandler(store, testutils.NewMockCache())

	rec := get(h, "/prices/history?symbol=BTCUSDT&limit=5")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Server Error") {
		t.Errorf("Expected server error body, got %s", rec.Body.String())
	}
}

func TestHandler_ReturnsAscendingJSON(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &testutils.MockTickStore{RecentTicks: []models.Tick{
		{Symbol: "BTCUSDT", Price: 2, Timestamp: base.Add(2 * time.Minute)},
		{Symbol: "BTCUSDT", Price: 1, Timestamp: base.Add(1 * time.Minute)},
	}}
	h := newHandler(store, testutils.NewMockCache())

	rec := get(h, "/prices/history?symbol=BTCUSDT&limit=2")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}

	var got []models.Tick
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Body is not valid JSON: %v", err)
	}
	if len(got) != 2 || got[0].Price != 1 || got[1].Price != 2 {
		t.Errorf("Expected ascending ticks [1 2], got %+v", got)
	}
}

func TestHandler_EmptyResultIsEmptyArray(t *testing.T) {
	h := newHandler(&testutils.MockTickStore{}, testutils.NewMockCache())

	rec := get(h, "/prices/history?symbol=NOPE")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("Expected [] body, got %s", body)
	}
}
