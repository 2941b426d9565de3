package trades

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/phatch9/drcrypt/cmd/server/internal/auth"
	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
	"github.com/phatch9/drcrypt/pkg/models"
)

const recentTradesLimit = 50

type tradeRequest struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// Handler is the authenticated trade-ledger API. It only records and
// lists fills; there is no matching and no balance keeping.
type Handler struct {
	store  repository.TradeStore
	logger *zap.Logger
}

func NewHandler(store repository.TradeStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authorized"})
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing required fields"})
		return
	}
	if req.Symbol == "" || req.Amount <= 0 || req.Price <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing required fields"})
		return
	}
	if req.Side != "BUY" && req.Side != "SELL" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Side must be BUY or SELL"})
		return
	}

	trade, err := h.store.RecordTrade(r.Context(), models.Trade{
		UserID:    claims.UserID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     req.Price,
		Amount:    req.Amount,
		Total:     req.Amount * req.Price,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Trade record failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return
	}

	writeJSON(w, http.StatusCreated, trade)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authorized"})
		return
	}

	trades, err := h.store.RecentTradesByUser(r.Context(), claims.UserID, recentTradesLimit)
	if err != nil {
		h.logger.Error("Trade list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return
	}

	writeJSON(w, http.StatusOK, trades)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
