package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/matchd/matchd/internal/config"
	"github.com/matchd/matchd/internal/storage"
	"github.com/matchd/matchd/internal/types"
)

type Mysql struct {
	DB *sql.DB
}

// New opens the connection pool and bootstraps the orders and trades
// tables. Orders are keyed by order_id (upserted as fills progress);
// trades are insert-only, unique by trade_id.
func New(cfg *config.Config) (*Mysql, error) {
	db, err := sql.Open("mysql", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	// ping the database to verify the connection is alive
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	_, err = db.Exec(
		`CREATE TABLE IF NOT EXISTS orders (
            order_id CHAR(36) PRIMARY KEY,
            client_id VARCHAR(64) NOT NULL,
            instrument VARCHAR(20) NOT NULL,
            side ENUM('buy', 'sell') NOT NULL,
            type ENUM('limit', 'market') NOT NULL,
            price DECIMAL(32, 8),
            quantity DECIMAL(32, 8) NOT NULL,
            filled_quantity DECIMAL(32, 8) NOT NULL DEFAULT 0,
            status ENUM('open', 'partially_filled', 'filled', 'cancelled') NOT NULL,
            revision BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
            updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)
        )`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create 'orders' table: %w", err)
	}

	_, err = db.Exec(
		`CREATE TABLE IF NOT EXISTS trades (
            trade_id CHAR(36) PRIMARY KEY,
            instrument VARCHAR(20) NOT NULL,
            buy_order_id CHAR(36) NOT NULL,
            sell_order_id CHAR(36) NOT NULL,
            price DECIMAL(32, 8) NOT NULL,
            quantity DECIMAL(32, 8) NOT NULL,
            created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
            INDEX idx_trades_instrument_created (instrument, created_at)
        )`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create 'trades' table: %w", err)
	}

	return &Mysql{DB: db}, nil
}

// SaveBatch writes one matched outcome in a single transaction: orders
// first (insert-or-update by order_id), then trades (insert-only). Any
// failure rolls the whole batch back.
func (m *Mysql) SaveBatch(ctx context.Context, trades []types.Trade, orders []types.Order) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, order := range orders {
		var price any
		if order.Price != nil {
			price = order.Price.String()
		}
		// snapshots can arrive out of order once the book lock is
		// released; the revision stamped under that lock decides which
		// one is fresher. revision is assigned last so the guards above
		// it still see the stored value.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (order_id, client_id, instrument, side, type, price, quantity, filled_quantity, status, revision, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON DUPLICATE KEY UPDATE
               filled_quantity = IF(VALUES(revision) > revision, VALUES(filled_quantity), filled_quantity),
               status = IF(VALUES(revision) > revision, VALUES(status), status),
               revision = IF(VALUES(revision) > revision, VALUES(revision), revision)`,
			order.OrderID, order.ClientID, order.Instrument, order.Side,
			order.Type, price, order.Quantity.String(), order.FilledQuantity.String(),
			order.Status, order.Revision, order.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", order.OrderID, err)
		}
	}

	for _, trade := range trades {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trades (trade_id, instrument, buy_order_id, sell_order_id, price, quantity, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			trade.TradeID, trade.Instrument, trade.BuyOrderID, trade.SellOrderID,
			trade.Price.String(), trade.Quantity.String(), trade.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", trade.TradeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (m *Mysql) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	var (
		order types.Order
		price sql.NullString
		qty   string
		fill  string
	)
	err := m.DB.QueryRowContext(ctx,
		`SELECT order_id, client_id, instrument, side, type, price, quantity, filled_quantity, status, revision, created_at
         FROM orders WHERE order_id = ?`, orderID).
		Scan(&order.OrderID, &order.ClientID, &order.Instrument, &order.Side,
			&order.Type, &price, &qty, &fill, &order.Status, &order.Revision, &order.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	if order.FilledQuantity, err = decimal.NewFromString(fill); err != nil {
		return nil, fmt.Errorf("parse filled_quantity: %w", err)
	}
	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		order.Price = &p
	}
	return &order, nil
}

func (m *Mysql) ListTrades(ctx context.Context, instrument string, limit int) ([]types.Trade, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := m.DB.QueryContext(ctx,
		`SELECT trade_id, instrument, buy_order_id, sell_order_id, price, quantity, created_at
         FROM trades
         WHERE instrument = ?
         ORDER BY created_at DESC
         LIMIT ?`, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var (
			trade      types.Trade
			price, qty string
		)
		if err := rows.Scan(&trade.TradeID, &trade.Instrument, &trade.BuyOrderID,
			&trade.SellOrderID, &price, &qty, &trade.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if trade.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return trades, nil
}

func (m *Mysql) Ping(ctx context.Context) error {
	return m.DB.PingContext(ctx)
}

func (m *Mysql) Close() error {
	return m.DB.Close()
}
