package storage

import (
	"context"
	"errors"

	"github.com/matchd/matchd/internal/types"
)

// ErrNotFound is returned when a read targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// BatchWriter persists one matched outcome as a single all-or-nothing
// transaction: every updated order is upserted first, then every trade is
// inserted. Either everything commits or nothing does.
type BatchWriter interface {
	SaveBatch(ctx context.Context, trades []types.Trade, orders []types.Order) error
}

// Storage is the durable system of record for orders and trades.
type Storage interface {
	BatchWriter
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
	ListTrades(ctx context.Context, instrument string, limit int) ([]types.Trade, error)
	Ping(ctx context.Context) error
	Close() error
}
