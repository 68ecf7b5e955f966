package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/matchd/matchd/internal/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func limitOrder(side types.OrderSide, price, qty string) *types.Order {
	p := d(price)
	return &types.Order{
		OrderID:    uuid.NewString(),
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       side,
		Type:       types.LIMIT,
		Price:      &p,
		Quantity:   d(qty),
	}
}

func marketOrder(side types.OrderSide, qty string) *types.Order {
	return &types.Order{
		OrderID:    uuid.NewString(),
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       side,
		Type:       types.MARKET,
		Quantity:   d(qty),
	}
}

// requireDepthConsistent checks that every level's depth equals the sum of
// remaining quantities of its queued orders.
func requireDepthConsistent(t *testing.T, book *OrderBook) {
	t.Helper()
	book.mu.Lock()
	defer book.mu.Unlock()
	for _, side := range []*bookSide{book.bids, book.asks} {
		for _, lvl := range side.levels {
			sum := decimal.Zero
			for _, o := range lvl.Queue {
				sum = sum.Add(o.Remaining())
			}
			require.True(t, lvl.Depth.Equal(sum),
				"depth %s != queue remaining %s at price %s", lvl.Depth, sum, lvl.Price)
		}
	}
}

// requireUncrossed checks best bid < best ask after a completed call.
func requireUncrossed(t *testing.T, book *OrderBook) {
	t.Helper()
	book.mu.Lock()
	defer book.mu.Unlock()
	bestBid := book.bids.best()
	bestAsk := book.asks.best()
	if bestBid == nil || bestAsk == nil {
		return
	}
	require.True(t, bestBid.Price.LessThan(bestAsk.Price),
		"book left crossed: bid %s >= ask %s", bestBid.Price, bestAsk.Price)
}

func TestBookSideInsertOrder(t *testing.T) {
	book := NewOrderBook("BTC-USD")

	for _, price := range []string{"101", "99", "100"} {
		book.bids.add(limitOrder(types.BUY, price, "1"))
		book.asks.add(limitOrder(types.SELL, price, "1"))
	}

	require.Equal(t, "101", book.bids.levels[0].Price.String())
	require.Equal(t, "99", book.bids.levels[2].Price.String())
	require.Equal(t, "99", book.asks.levels[0].Price.String())
	require.Equal(t, "101", book.asks.levels[2].Price.String())
}

func TestBookSideAddMergesSamePrice(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	book.asks.add(limitOrder(types.SELL, "100", "2"))
	book.asks.add(limitOrder(types.SELL, "100", "3"))

	require.Len(t, book.asks.levels, 1)
	require.True(t, book.asks.levels[0].Depth.Equal(d("5")))
	require.Len(t, book.asks.levels[0].Queue, 2)
}

func TestBookSideRemoveDeletesEmptyLevel(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	o := limitOrder(types.BUY, "100", "4")
	book.bids.add(o)

	require.True(t, book.bids.remove(o))
	require.Empty(t, book.bids.levels)
	require.False(t, book.bids.remove(o))
}

func TestSnapshotCumulative(t *testing.T) {
	eng := NewMatchingEngine()
	eng.PlaceOrder(limitOrder(types.SELL, "100", "2"))
	eng.PlaceOrder(limitOrder(types.SELL, "101", "3"))
	eng.PlaceOrder(limitOrder(types.SELL, "102", "4"))
	eng.PlaceOrder(limitOrder(types.BUY, "99", "5"))

	snap := eng.GetOrderBook("BTC-USD", 2)

	require.Len(t, snap.Asks, 2)
	require.Equal(t, "100", snap.Asks[0].Price.String())
	require.True(t, snap.Asks[0].Cumulative.Equal(d("2")))
	require.Equal(t, "101", snap.Asks[1].Price.String())
	require.True(t, snap.Asks[1].Cumulative.Equal(d("5")))

	require.Len(t, snap.Bids, 1)
	require.True(t, snap.Bids[0].Quantity.Equal(d("5")))
	require.True(t, snap.Bids[0].Cumulative.Equal(d("5")))
}

func TestDecimalQuantitiesDoNotDrift(t *testing.T) {
	eng := NewMatchingEngine()
	eng.PlaceOrder(limitOrder(types.SELL, "0.00000003", "0.30000001"))

	// ten small takers against one resting maker
	for i := 0; i < 10; i++ {
		eng.PlaceOrder(marketOrder(types.BUY, "0.03"))
	}

	snap := eng.GetOrderBook("BTC-USD", 1)
	require.Len(t, snap.Asks, 1)
	require.True(t, snap.Asks[0].Quantity.Equal(d("0.00000001")),
		"expected exact remainder, got %s", snap.Asks[0].Quantity)
}
