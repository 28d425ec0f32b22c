// Package queue implements the bounded, multi-producer multi-consumer ring
// buffers of spec §5: one queue per consumer (typically one per worker
// thread), each paired with a waker the producer bumps after a batch of
// sends so consumers amortize wakeups across an event-loop iteration
// rather than waking once per item.
package queue

import (
	stdErrors "errors"
	"math/rand"
	"sync"
)

// ErrFull is returned by TrySend when the target queue's ring buffer has
// no free slot.
var ErrFull = stdErrors.New("queue: full")

// ErrNoConsumers is returned by TrySendAny when the registry has no
// queues to pick from.
var ErrNoConsumers = stdErrors.New("queue: no consumers registered")

// Waker is the narrow surface a queue needs from its consumer's reactor:
// a way to interrupt a blocked poll so the consumer notices new items.
// It mirrors reactor.Reactor.Wake without importing that package, keeping
// queue free of any reactor dependency.
type Waker interface {
	Wake() error
}

// Queue is a single bounded ring buffer of `any` items guarded by a mutex.
// Capacity is fixed at construction; sends beyond capacity fail with
// ErrFull rather than blocking, matching the non-blocking-everywhere
// discipline of the reactor model.
type Queue struct {
	mu    sync.Mutex
	items []any
	head  int
	size  int
	waker Waker

	needsWake bool
}

// New creates a Queue of the given capacity, paired with waker (nil is
// allowed for queues tests drain synchronously without a reactor).
func New(capacity int, waker Waker) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{items: make([]any, capacity), waker: waker}
}

// TrySend enqueues item, returning ErrFull if the ring is at capacity. It
// records "needs wake" on success; the caller batches the actual Wake()
// call via FlushWake.
func (q *Queue) TrySend(item any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.items) {
		return ErrFull
	}
	tail := (q.head + q.size) % len(q.items)
	q.items[tail] = item
	q.size++
	q.needsWake = true
	return nil
}

// TryRecv dequeues the oldest item, or reports ok=false if empty.
func (q *Queue) TryRecv() (item any, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil, false
	}
	item = q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item, true
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// FlushWake calls the paired waker exactly once if any TrySend succeeded
// since the last FlushWake, then clears the flag. Callers invoke this once
// per event-loop iteration after a batch of sends, per spec §5's
// batch-wake amortization.
func (q *Queue) FlushWake() error {
	q.mu.Lock()
	needed := q.needsWake
	q.needsWake = false
	waker := q.waker
	q.mu.Unlock()

	if !needed || waker == nil {
		return nil
	}
	return waker.Wake()
}

// Registry addresses a set of per-consumer Queues by integer id, used by
// the listener thread ("send to any") and the admin surface
// ("broadcast flush_all") of spec §4.I/§6.
type Registry struct {
	mu     sync.RWMutex
	queues map[int]*Queue
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[int]*Queue)}
}

// Add registers queue under id, overwriting any previous entry.
func (r *Registry) Add(id int, q *Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[id] = q
}

// Remove drops id from the registry.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, id)
}

// TrySendTo addresses exactly one consumer by id.
func (r *Registry) TrySendTo(id int, item any) error {
	r.mu.RLock()
	q, ok := r.queues[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoConsumers
	}
	return q.TrySend(item)
}

// TrySendAny picks a consumer uniformly at random and sends to it.
func (r *Registry) TrySendAny(item any) error {
	r.mu.RLock()
	ids := make([]int, 0, len(r.queues))
	for id := range r.queues {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	if len(ids) == 0 {
		return ErrNoConsumers
	}
	return r.TrySendTo(ids[rand.Intn(len(ids))], item)
}

// TrySendAll broadcasts item to every registered consumer, collecting and
// returning the first error encountered (if any) but still attempting
// every queue rather than stopping early.
func (r *Registry) TrySendAll(item any) error {
	r.mu.RLock()
	snapshot := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		snapshot = append(snapshot, q)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, q := range snapshot {
		if err := q.TrySend(item); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FlushWakeAll calls FlushWake on every registered queue, used once per
// listener-thread event-loop iteration after any TrySendTo/Any/All batch.
func (r *Registry) FlushWakeAll() {
	r.mu.RLock()
	snapshot := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		snapshot = append(snapshot, q)
	}
	r.mu.RUnlock()

	for _, q := range snapshot {
		_ = q.FlushWake()
	}
}
