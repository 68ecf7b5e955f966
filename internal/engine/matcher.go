package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/matchd/matchd/internal/types"
)

// MatchingEngine owns one OrderBook per instrument. Every place or cancel
// runs under that book's lock for the full duration of the call, so
// mutations on one instrument are linearized while distinct instruments
// proceed independently.
type MatchingEngine struct {
	mu      sync.RWMutex
	books   map[string]*OrderBook
	byOrder map[string]*OrderBook // order ID -> owning book, for cancels
	now     func() time.Time
}

func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{
		books:   make(map[string]*OrderBook),
		byOrder: make(map[string]*OrderBook),
		now:     time.Now,
	}
}

func (e *MatchingEngine) bookFor(instrument string) *OrderBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	book, ok := e.books[instrument]
	if !ok {
		book = NewOrderBook(instrument)
		e.books[instrument] = book
	}
	return book
}

// PlaceOrder matches the order synchronously against its instrument's book
// and returns every order the call touched. Input shape is the caller's job
// to validate; a non-match is a normal, error-free result.
func (e *MatchingEngine) PlaceOrder(order *types.Order) MatchResult {
	order.Status = types.OPEN
	if order.Timestamp.IsZero() {
		order.Timestamp = e.now()
	}

	book := e.bookFor(order.Instrument)

	book.mu.Lock()
	res := book.place(order, e.now())
	book.mu.Unlock()

	e.mu.Lock()
	e.byOrder[order.OrderID] = book
	e.mu.Unlock()

	// the book owns order now; the taker snapshot is always first
	taker := res.UpdatedOrders[0]
	slog.Debug("order processed",
		slog.String("order_id", taker.OrderID),
		slog.String("instrument", taker.Instrument),
		slog.String("status", string(taker.Status)),
		slog.Int("trades", len(res.Trades)))

	return res
}

// CancelOrder cancels a resting order and returns a snapshot of its final
// state. A missing or already terminal order is a negative result, not an
// error.
func (e *MatchingEngine) CancelOrder(orderID string) (types.Order, bool) {
	e.mu.RLock()
	book, ok := e.byOrder[orderID]
	e.mu.RUnlock()
	if !ok {
		return types.Order{}, false
	}

	book.mu.Lock()
	defer book.mu.Unlock()
	return book.cancel(orderID)
}

// GetOrder returns the in-memory state of an order, if this engine has
// seen it.
func (e *MatchingEngine) GetOrder(orderID string) (*types.Order, bool) {
	e.mu.RLock()
	book, ok := e.byOrder[orderID]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	book.mu.Lock()
	defer book.mu.Unlock()
	o, ok := book.orders[orderID]
	if !ok {
		return nil, false
	}
	copied := *o
	return &copied, true
}

// GetOrderBook returns an aggregated snapshot of up to levels price levels
// per side, taken at one consistent instant.
func (e *MatchingEngine) GetOrderBook(instrument string, levels int) types.BookSnapshot {
	if levels <= 0 {
		levels = 20
	}
	book := e.bookFor(instrument)

	book.mu.Lock()
	defer book.mu.Unlock()
	return book.snapshot(levels)
}

// Depths reports the number of populated price levels per side, for
// metrics scraping.
func (e *MatchingEngine) Depths(instrument string) (bids, asks int) {
	book := e.bookFor(instrument)
	book.mu.Lock()
	defer book.mu.Unlock()
	return len(book.bids.levels), len(book.asks.levels)
}
