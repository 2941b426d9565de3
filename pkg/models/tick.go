package models

import "time"

// Tick is one normalized price observation for a symbol at an instant.
// It is immutable once created; duplicates are tolerated, not deduplicated.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Trade is one recorded fill in a user's ledger.
type Trade struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Total     float64   `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// User is an account record. PasswordHash never crosses the wire.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
