package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matchd/matchd/internal/types"
)

// PriceLevel is one price point of a book side: the aggregate remaining
// quantity (depth) and the FIFO queue of resting orders at that price.
type PriceLevel struct {
	Price decimal.Decimal
	Depth decimal.Decimal
	Queue []*types.Order
}

// bookSide keeps price levels sorted best-first: descending for bids,
// ascending for asks.
type bookSide struct {
	bids   bool
	levels []*PriceLevel
}

// search returns the index where price belongs in priority order and
// whether a level at exactly that price exists.
func (s *bookSide) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		if s.bids {
			return s.levels[i].Price.LessThanOrEqual(price)
		}
		return s.levels[i].Price.GreaterThanOrEqual(price)
	})
	if i < len(s.levels) && s.levels[i].Price.Equal(price) {
		return i, true
	}
	return i, false
}

func (s *bookSide) best() *PriceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// add rests an order at the back of its level's queue, creating the level
// if needed.
func (s *bookSide) add(o *types.Order) {
	i, found := s.search(*o.Price)
	if !found {
		lvl := &PriceLevel{Price: *o.Price, Depth: decimal.Zero}
		s.levels = append(s.levels, nil)
		copy(s.levels[i+1:], s.levels[i:])
		s.levels[i] = lvl
	}
	lvl := s.levels[i]
	lvl.Queue = append(lvl.Queue, o)
	lvl.Depth = lvl.Depth.Add(o.Remaining())
}

// removeLevel deletes the level at index i.
func (s *bookSide) removeLevel(i int) {
	s.levels = append(s.levels[:i], s.levels[i+1:]...)
}

// remove takes an order out of its level's queue at any position and
// decrements the depth by the order's remaining quantity. Returns false
// when the order is not resting on this side.
func (s *bookSide) remove(o *types.Order) bool {
	if o.Price == nil {
		return false
	}
	i, found := s.search(*o.Price)
	if !found {
		return false
	}
	lvl := s.levels[i]
	for j, q := range lvl.Queue {
		if q.OrderID != o.OrderID {
			continue
		}
		lvl.Queue = append(lvl.Queue[:j], lvl.Queue[j+1:]...)
		lvl.Depth = lvl.Depth.Sub(o.Remaining())
		if lvl.Depth.LessThanOrEqual(decimal.Zero) || len(lvl.Queue) == 0 {
			s.removeLevel(i)
		}
		return true
	}
	return false
}

// OrderBook holds the resting orders of a single instrument. All access
// goes through mu so the multi-step matching loop is never interleaved
// with another mutation on the same instrument.
type OrderBook struct {
	Instrument string

	mu     sync.Mutex
	bids   *bookSide
	asks   *bookSide
	orders map[string]*types.Order // every order this book has seen, by ID
	seq    int64                   // bumped per touched order, stamps snapshots
}

// NewOrderBook creates a fresh book for an instrument.
func NewOrderBook(instrument string) *OrderBook {
	return &OrderBook{
		Instrument: instrument,
		bids:       &bookSide{bids: true},
		asks:       &bookSide{bids: false},
		orders:     make(map[string]*types.Order),
	}
}

// MatchResult carries everything a place call touched: the executed trades
// plus the taker and every distinct maker. UpdatedOrders are value
// snapshots taken under the book lock; live book state never escapes it.
type MatchResult struct {
	Trades        []types.Trade
	UpdatedOrders []types.Order
}

// crosses reports whether the taker executes against a level at price.
func crosses(taker *types.Order, price decimal.Decimal) bool {
	if taker.Type == types.MARKET {
		return true
	}
	if taker.Side == types.BUY {
		return taker.Price.GreaterThanOrEqual(price)
	}
	return taker.Price.LessThanOrEqual(price)
}

// place runs the matching loop for taker and rests any limit leftover.
// Caller must hold b.mu.
func (b *OrderBook) place(taker *types.Order, now time.Time) MatchResult {
	opposite := b.asks
	if taker.Side == types.SELL {
		opposite = b.bids
	}

	res := MatchResult{Trades: []types.Trade{}}
	makers := []*types.Order{}

	for taker.Remaining().GreaterThan(decimal.Zero) {
		lvl := opposite.best()
		if lvl == nil || !crosses(taker, lvl.Price) {
			break
		}

		// oldest order at the best level, strict FIFO
		maker := lvl.Queue[0]
		qty := decimal.Min(taker.Remaining(), maker.Remaining())

		trade := types.Trade{
			TradeID:    uuid.NewString(),
			Instrument: b.Instrument,
			Price:      lvl.Price, // maker's price; improvement accrues to the taker
			Quantity:   qty,
			Timestamp:  now,
		}
		if taker.Side == types.BUY {
			trade.BuyOrderID, trade.SellOrderID = taker.OrderID, maker.OrderID
		} else {
			trade.BuyOrderID, trade.SellOrderID = maker.OrderID, taker.OrderID
		}
		res.Trades = append(res.Trades, trade)

		// both sides advance together, never one without the other
		taker.FilledQuantity = taker.FilledQuantity.Add(qty)
		maker.FilledQuantity = maker.FilledQuantity.Add(qty)
		lvl.Depth = lvl.Depth.Sub(qty)

		if maker.Remaining().GreaterThan(decimal.Zero) {
			// partial maker keeps its original time priority at the
			// front of the queue
			maker.Status = types.PARTIAL
		} else {
			maker.Status = types.FILLED
			lvl.Queue = lvl.Queue[1:]
			if lvl.Depth.LessThanOrEqual(decimal.Zero) {
				opposite.removeLevel(0)
			}
		}
		makers = append(makers, maker)
	}

	switch {
	case taker.Remaining().IsZero():
		taker.Status = types.FILLED
	case taker.FilledQuantity.GreaterThan(decimal.Zero):
		taker.Status = types.PARTIAL
	default:
		taker.Status = types.OPEN
	}

	// a limit leftover rests at the back of its level; a market leftover
	// is dropped, never resting
	if taker.Type == types.LIMIT && taker.Remaining().GreaterThan(decimal.Zero) {
		same := b.bids
		if taker.Side == types.SELL {
			same = b.asks
		}
		same.add(taker)
	}

	b.orders[taker.OrderID] = taker

	touched := append([]*types.Order{taker}, distinct(makers)...)
	res.UpdatedOrders = make([]types.Order, 0, len(touched))
	for _, o := range touched {
		b.seq++
		o.Revision = b.seq
		res.UpdatedOrders = append(res.UpdatedOrders, *o)
	}
	return res
}

// cancel flips a resting order to cancelled and removes it from the book.
// Returns a value snapshot; (zero, false) when the ID is unknown or the
// order is terminal. Caller must hold b.mu.
func (b *OrderBook) cancel(orderID string) (types.Order, bool) {
	o, ok := b.orders[orderID]
	if !ok || o.Status.Terminal() {
		return types.Order{}, false
	}

	side := b.bids
	if o.Side == types.SELL {
		side = b.asks
	}
	// entry may have raced away (e.g. a market taker that never rested);
	// the status still flips without further book mutation
	side.remove(o)
	o.Status = types.CANCELLED
	b.seq++
	o.Revision = b.seq
	return *o, true
}

// snapshot aggregates up to levels price levels per side, best first.
// Caller must hold b.mu.
func (b *OrderBook) snapshot(levels int) types.BookSnapshot {
	return types.BookSnapshot{
		Instrument: b.Instrument,
		Bids:       aggregate(b.bids, levels),
		Asks:       aggregate(b.asks, levels),
	}
}

func aggregate(side *bookSide, levels int) []types.BookLevel {
	out := make([]types.BookLevel, 0, levels)
	cumulative := decimal.Zero
	for _, lvl := range side.levels {
		if len(out) >= levels {
			break
		}
		cumulative = cumulative.Add(lvl.Depth)
		out = append(out, types.BookLevel{
			Price:      lvl.Price,
			Quantity:   lvl.Depth,
			Cumulative: cumulative,
		})
	}
	return out
}

// distinct de-duplicates makers touched more than once in a single loop.
func distinct(orders []*types.Order) []*types.Order {
	seen := make(map[string]struct{}, len(orders))
	out := orders[:0]
	for _, o := range orders {
		if _, ok := seen[o.OrderID]; ok {
			continue
		}
		seen[o.OrderID] = struct{}{}
		out = append(out, o)
	}
	return out
}
