// Package persistence drains matched outcomes into durable storage through
// a single worker, strictly in submission order. Durability is decoupled
// from the caller's response latency but never reordered.
package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/matchd/matchd/internal/storage"
	"github.com/matchd/matchd/internal/types"
)

// ErrClosed is returned by Enqueue once the queue has stopped accepting
// tasks.
var ErrClosed = errors.New("persistence queue closed")

// Task is one batch produced by a single engine call.
type Task struct {
	Trades        []types.Trade
	UpdatedOrders []types.Order
}

// ErrorHandler receives tasks whose transaction failed. Failed tasks are
// not retried; the handler is the dead-letter hook.
type ErrorHandler func(task Task, err error)

// Queue is a bounded, strictly ordered, single-consumer pipeline in front
// of a storage.BatchWriter. Exactly one task executes at a time.
type Queue struct {
	store   storage.BatchWriter
	onError ErrorHandler

	mu        sync.Mutex
	closed    bool
	discard   bool
	pending   int
	idleWake  chan struct{}
	producers sync.WaitGroup

	tasks chan Task
	quit  chan struct{}
	done  chan struct{}
}

// New starts the queue's worker. buffer bounds how many tasks may wait;
// onError may be nil.
func New(store storage.BatchWriter, buffer int, onError ErrorHandler) *Queue {
	if buffer <= 0 {
		buffer = 1024
	}
	q := &Queue{
		store:    store,
		onError:  onError,
		idleWake: make(chan struct{}),
		tasks:    make(chan Task, buffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue submits a task for durable write. Tasks drain in exactly the
// order they were enqueued. Blocks while the buffer is full.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending++
	q.producers.Add(1)
	q.mu.Unlock()

	// the worker keeps consuming until stop, so a full buffer drains;
	// stop waits for in-flight sends before it lets the worker exit
	q.tasks <- task
	q.producers.Done()
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case task := <-q.tasks:
			q.process(task)
		case <-q.quit:
			for {
				select {
				case task := <-q.tasks:
					q.process(task)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) process(task Task) {
	q.mu.Lock()
	skip := q.discard
	q.mu.Unlock()

	if !skip {
		err := q.store.SaveBatch(context.Background(), task.Trades, task.UpdatedOrders)
		if err != nil {
			slog.Error("persistence task failed",
				slog.Int("trades", len(task.Trades)),
				slog.Int("orders", len(task.UpdatedOrders)),
				slog.String("error", err.Error()))
			if q.onError != nil {
				q.onError(task, err)
			}
		}
	}

	q.mu.Lock()
	q.pending--
	if q.pending == 0 {
		close(q.idleWake)
		q.idleWake = make(chan struct{})
	}
	q.mu.Unlock()
}

// Idle reports whether no tasks are queued or executing.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending == 0
}

// WaitIdle blocks until the queue has fully drained or ctx expires.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.pending == 0 {
			q.mu.Unlock()
			return nil
		}
		wake := q.idleWake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting tasks and waits for the backlog to drain, or for
// ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.stop(false)
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard stops accepting tasks and drops the backlog without writing it.
func (q *Queue) Discard() {
	q.stop(true)
	<-q.done
}

func (q *Queue) stop(discard bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.discard = discard
	q.mu.Unlock()

	// every in-flight Enqueue lands in the buffer before the worker is
	// allowed to exit its drain loop
	q.producers.Wait()
	close(q.quit)
}
