package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/phatch9/drcrypt/pkg/models"
)

const pqUniqueViolation = "23505"

// Compile-time checks to ensure Postgres implements the store interfaces
var (
	_ TickStore  = (*Postgres)(nil)
	_ UserStore  = (*Postgres)(nil)
	_ TradeStore = (*Postgres)(nil)
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ticks (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ticks_symbol_timestamp ON ticks(symbol, timestamp DESC);

	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		symbol VARCHAR(20) NOT NULL,
		side VARCHAR(4) NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		total DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_trades_user_timestamp ON trades(user_id, timestamp DESC);
	`
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *Postgres) Append(ctx context.Context, tick models.Tick) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ticks (symbol, price, timestamp) VALUES ($1, $2, $3)`,
		tick.Symbol, tick.Price, tick.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append tick: %w", err)
	}
	return nil
}

func (p *Postgres) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]models.Tick, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT symbol, price, timestamp FROM ticks WHERE symbol = $1 ORDER BY timestamp DESC LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	ticks := make([]models.Tick, 0, limit)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Symbol, &t.Price, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ticks: %w", err)
	}
	return ticks, nil
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	var user models.User
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	user.Username = username
	user.PasswordHash = passwordHash
	return user, nil
}

func (p *Postgres) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (p *Postgres) RecordTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO trades (user_id, symbol, side, price, amount, total, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		trade.UserID, trade.Symbol, trade.Side, trade.Price, trade.Amount, trade.Total, trade.Timestamp,
	).Scan(&trade.ID)
	if err != nil {
		return models.Trade{}, fmt.Errorf("failed to record trade: %w", err)
	}
	return trade, nil
}

func (p *Postgres) RecentTradesByUser(ctx context.Context, userID int64, limit int) ([]models.Trade, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, symbol, side, price, amount, total, timestamp
		 FROM trades WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]models.Trade, 0, limit)
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Price, &t.Amount, &t.Total, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
