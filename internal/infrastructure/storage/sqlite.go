package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; simulation workers save after joining anyway.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			worker INTEGER NOT NULL,
			mode TEXT NOT NULL,
			steps INTEGER NOT NULL,
			trades INTEGER NOT NULL,
			initial_balance REAL NOT NULL,
			final_net_worth REAL NOT NULL,
			max_net_worth REAL NOT NULL,
			max_drawdown REAL NOT NULL,
			total_reward REAL NOT NULL,
			fees_paid REAL NOT NULL,
			breached BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			price REAL NOT NULL,
			equity REAL NOT NULL,
			live_position REAL NOT NULL,
			allocation REAL NOT NULL,
			observation TEXT NOT NULL,
			kind TEXT NOT NULL,
			target REAL NOT NULL,
			executed BOOLEAN NOT NULL DEFAULT 0,
			orders INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_created ON cycles(created_at);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			reduce_only BOOLEAN NOT NULL DEFAULT 0,
			price REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_cycle ON orders(cycle_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// EpisodeRepository Implementation

func (s *SQLiteStore) SaveEpisode(ctx context.Context, ep *domain.EpisodeSummary) error {
	query := `INSERT INTO episodes (id, worker, mode, steps, trades, initial_balance, final_net_worth, max_net_worth, max_drawdown, total_reward, fees_paid, breached, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		ep.ID, ep.Worker, ep.Mode, ep.Steps, ep.Trades, ep.InitialBalance, ep.FinalNetWorth,
		ep.MaxNetWorth, ep.MaxDrawdown, ep.TotalReward, ep.FeesPaid, ep.Breached, ep.CreatedAt)
	return err
}

func (s *SQLiteStore) ListEpisodes(ctx context.Context, limit int) ([]*domain.EpisodeSummary, error) {
	query := `SELECT id, worker, mode, steps, trades, initial_balance, final_net_worth, max_net_worth, max_drawdown, total_reward, fees_paid, breached, created_at
			  FROM episodes ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []*domain.EpisodeSummary
	for rows.Next() {
		var e domain.EpisodeSummary
		if err := rows.Scan(&e.ID, &e.Worker, &e.Mode, &e.Steps, &e.Trades, &e.InitialBalance, &e.FinalNetWorth,
			&e.MaxNetWorth, &e.MaxDrawdown, &e.TotalReward, &e.FeesPaid, &e.Breached, &e.CreatedAt); err != nil {
			return nil, err
		}
		episodes = append(episodes, &e)
	}
	return episodes, rows.Err()
}

// JournalRepository Implementation

func (s *SQLiteStore) SaveCycle(ctx context.Context, c *domain.CycleRecord) error {
	obs, err := json.Marshal(c.Observation)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	query := `INSERT INTO cycles (id, symbol, price, equity, live_position, allocation, observation, kind, target, executed, orders, error, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.Symbol, c.Price, c.Equity, c.LivePosition, c.Allocation, string(obs),
		c.Kind, c.Target, c.Executed, c.Orders, c.Error, c.CreatedAt)
	return err
}

func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]*domain.CycleRecord, error) {
	query := `SELECT id, symbol, price, equity, live_position, allocation, observation, kind, target, executed, orders, error, created_at
			  FROM cycles ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []*domain.CycleRecord
	for rows.Next() {
		var c domain.CycleRecord
		var obs string
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Price, &c.Equity, &c.LivePosition, &c.Allocation, &obs,
			&c.Kind, &c.Target, &c.Executed, &c.Orders, &c.Error, &c.CreatedAt); err != nil {
			return nil, err
		}
		if obs != "" && obs != "null" {
			if err := json.Unmarshal([]byte(obs), &c.Observation); err != nil {
				return nil, fmt.Errorf("decode observation of cycle %s: %w", c.ID, err)
			}
		}
		cycles = append(cycles, &c)
	}
	return cycles, rows.Err()
}

func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (cycle_id, order_id, exchange, symbol, side, quantity, reduce_only, price, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		o.CycleID, o.OrderID, o.Exchange, o.Symbol, o.Side, o.Quantity, o.ReduceOnly, o.Price, o.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		o.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT id, cycle_id, order_id, exchange, symbol, side, quantity, reduce_only, price, created_at FROM orders ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.CycleID, &o.OrderID, &o.Exchange, &o.Symbol, &o.Side, &o.Quantity, &o.ReduceOnly, &o.Price, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
