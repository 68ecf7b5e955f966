package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/matchd/matchd/internal/types"
)

// fakeStore commits batches atomically: on an injected failure nothing
// from the batch is recorded, mirroring the transactional contract.
type fakeStore struct {
	mu      sync.Mutex
	trades  []types.Trade
	orders  []types.Order
	batches int
	failOn  int // 1-based batch index that fails; 0 = never
}

var errInjected = errors.New("injected failure")

func (s *fakeStore) SaveBatch(_ context.Context, trades []types.Trade, orders []types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.failOn != 0 && s.batches == s.failOn {
		return errInjected
	}
	s.trades = append(s.trades, trades...)
	s.orders = append(s.orders, orders...)
	return nil
}

func (s *fakeStore) snapshot() ([]types.Trade, []types.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Trade(nil), s.trades...), append([]types.Order(nil), s.orders...)
}

func task(tradeIDs ...string) Task {
	t := Task{UpdatedOrders: []types.Order{{OrderID: uuid.NewString(), Quantity: decimal.NewFromInt(1)}}}
	for _, id := range tradeIDs {
		t.Trades = append(t.Trades, types.Trade{TradeID: id, Quantity: decimal.NewFromInt(1)})
	}
	return t
}

func TestTasksDrainInSubmissionOrder(t *testing.T) {
	store := &fakeStore{}
	q := New(store, 16, nil)

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, q.Enqueue(task(id)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))

	trades, _ := store.snapshot()
	require.Len(t, trades, 4)
	for i, want := range []string{"t1", "t2", "t3", "t4"} {
		require.Equal(t, want, trades[i].TradeID)
	}
}

func TestFailedBatchLeavesStoreUnchanged(t *testing.T) {
	store := &fakeStore{failOn: 2}

	var (
		mu     sync.Mutex
		failed []Task
	)
	q := New(store, 16, func(task Task, err error) {
		mu.Lock()
		failed = append(failed, task)
		mu.Unlock()
		require.ErrorIs(t, err, errInjected)
	})

	require.NoError(t, q.Enqueue(task("t1")))
	require.NoError(t, q.Enqueue(task("t2"))) // this one fails
	require.NoError(t, q.Enqueue(task("t3")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))

	trades, orders := store.snapshot()
	require.Len(t, trades, 2, "failed batch must contribute nothing")
	require.Equal(t, "t1", trades[0].TradeID)
	require.Equal(t, "t3", trades[1].TradeID)
	require.Len(t, orders, 2)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1, "failed task goes to the handler, not back on the queue")
	require.Equal(t, "t2", failed[0].Trades[0].TradeID)
}

func TestCloseDrainsBacklog(t *testing.T) {
	store := &fakeStore{}
	q := New(store, 64, nil)

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(task(uuid.NewString())))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	trades, _ := store.snapshot()
	require.Len(t, trades, 50)
	require.True(t, q.Idle())
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	q := New(&fakeStore{}, 4, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	require.ErrorIs(t, q.Enqueue(task("t1")), ErrClosed)
}

func TestDiscardDropsBacklog(t *testing.T) {
	store := &fakeStore{}
	q := New(store, 64, nil)

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue(task(uuid.NewString())))
	}
	q.Discard()

	trades, _ := store.snapshot()
	require.LessOrEqual(t, len(trades), 20)
	require.ErrorIs(t, q.Enqueue(task("late")), ErrClosed)
	require.True(t, q.Idle())
}

// upsertStore keeps the latest row per order the way the durable upsert
// does: a snapshot only lands if its revision is newer than the stored one.
type upsertStore struct {
	mu   sync.Mutex
	rows map[string]types.Order
}

func (s *upsertStore) SaveBatch(_ context.Context, _ []types.Trade, orders []types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = make(map[string]types.Order)
	}
	for _, o := range orders {
		if stored, ok := s.rows[o.OrderID]; ok && o.Revision <= stored.Revision {
			continue
		}
		s.rows[o.OrderID] = o
	}
	return nil
}

func (s *upsertStore) row(id string) (types.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	return o, ok
}

func TestStaleSnapshotCannotRegressFresherRow(t *testing.T) {
	store := &upsertStore{}
	q := New(store, 16, nil)

	id := uuid.NewString()
	fresh := types.Order{
		OrderID:        id,
		Quantity:       decimal.NewFromInt(10),
		FilledQuantity: decimal.NewFromInt(7),
		Status:         types.PARTIAL,
		Revision:       2,
	}
	stale := types.Order{
		OrderID:        id,
		Quantity:       decimal.NewFromInt(10),
		FilledQuantity: decimal.NewFromInt(3),
		Status:         types.PARTIAL,
		Revision:       1,
	}

	// the fresher snapshot reaching the queue first must survive the
	// stale one landing after it
	require.NoError(t, q.Enqueue(Task{UpdatedOrders: []types.Order{fresh}}))
	require.NoError(t, q.Enqueue(Task{UpdatedOrders: []types.Order{stale}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))

	got, ok := store.row(id)
	require.True(t, ok)
	require.True(t, got.FilledQuantity.Equal(decimal.NewFromInt(7)),
		"stale snapshot regressed filled quantity to %s", got.FilledQuantity)
	require.EqualValues(t, 2, got.Revision)
}

func TestWaitIdleOnFreshQueue(t *testing.T) {
	q := New(&fakeStore{}, 4, nil)
	require.True(t, q.Idle())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
}
