// Package queue provides BlockingQueue, a generic FIFO used to hand work
// from producer goroutines (the acceptor) to consumer goroutines (workers).
//
// Consumers block in Pop until an item arrives or the queue is stopped.
// Stop is a one-way transition: once stopped, Pop never blocks again and
// never returns an item, but Push still enqueues and Flush still drains.
// Callers use Flush after Stop to reclaim anything left behind.
package queue

import "sync"

// BlockingQueue is a thread-safe FIFO with a blocking Pop and cooperative
// shutdown. The zero value is not usable; construct with New.
type BlockingQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	stopped bool
}

// New creates an empty, running queue.
func New[T any]() *BlockingQueue[T] {
	q := &BlockingQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to the back of the queue. If the queue was empty, one
// blocked Pop caller is woken. Push after Stop still enqueues; such items
// are only reachable through Flush.
func (q *BlockingQueue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wasEmpty := len(q.items) == 0
	q.items = append(q.items, item)
	if wasEmpty {
		q.cond.Signal()
	}
}

// Pop removes and returns the front item. It blocks while the queue is
// empty and running. If the queue is stopped, whether before the call or
// while waiting, Pop returns the zero value and stopped=true without
// consuming anything.
func (q *BlockingQueue[T]) Pop() (item T, stopped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopped {
			return item, true
		}
		if len(q.items) > 0 {
			break
		}
		q.cond.Wait()
	}

	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	// Push only signals on the empty -> non-empty edge, so a burst of pushes
	// can leave items behind with waiters still parked. Pass the baton on.
	if len(q.items) > 0 {
		q.cond.Signal()
	}
	return item, false
}

// Flush drains and returns every buffered item in FIFO order, regardless of
// stop state. It never blocks and may return an empty slice.
func (q *BlockingQueue[T]) Flush() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, len(q.items))
	copy(out, q.items)
	q.items = nil
	return out
}

// Stop marks the queue stopped and wakes every blocked Pop caller. Calling
// Stop more than once has no further effect.
func (q *BlockingQueue[T]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.stopped = true
	q.cond.Broadcast()
}

// Stopped reports whether Stop has been called.
func (q *BlockingQueue[T]) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// Size returns the number of buffered items at the moment of the call.
// The value may be stale by the time the caller looks at it; use it for
// logging and metrics only, never to decide whether Pop will block.
func (q *BlockingQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
