// Package changefeed pushes complete collection snapshots to subscribers.
//
// A Hub owns one collection. Each change signal reloads the whole
// collection and fans the result out to every live Subscription. Loads
// and fan-out run on a single goroutine, so snapshot versions observed by
// any one subscriber strictly increase.
package changefeed

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Next once the subscription or hub is closed.
var ErrClosed = errors.New("changefeed: subscription closed")

// Reload retry bounds after a failed load.
const (
	DefaultRetryMin = 200 * time.Millisecond
	DefaultRetryMax = 10 * time.Second
)

// Loader reads the complete current contents of a collection.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Snapshot is one full view of a collection. Records must not be modified.
type Snapshot[T any] struct {
	Version uint64
	Records []T
	At      time.Time
}

type Hub[T any] struct {
	name string
	load Loader[T]
	log  *slog.Logger
	kick chan struct{}

	retryMin time.Duration
	retryMax time.Duration

	mu      sync.Mutex
	subs    map[uint64]*Subscription[T]
	nextID  uint64
	version uint64
	latest  *Snapshot[T]
	done    bool
}

func NewHub[T any](name string, load Loader[T], log *slog.Logger) *Hub[T] {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub[T]{
		name: name,
		load: load,
		log:  log.With("component", "changefeed", "collection", name),
		kick: make(chan struct{}, 1),
		subs: make(map[uint64]*Subscription[T]),

		retryMin: DefaultRetryMin,
		retryMax: DefaultRetryMax,
	}
	h.Notify()
	return h
}

func (h *Hub[T]) Name() string { return h.name }

// Notify schedules a reload. Signals arriving while a reload is pending coalesce.
func (h *Hub[T]) Notify() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Run performs reloads until ctx is done, then closes every subscription.
// A failed load is retried with exponential backoff until one succeeds, so
// subscribers are never left without a current snapshot.
func (h *Hub[T]) Run(ctx context.Context) error {
	defer h.shutdown()
	var (
		retry   <-chan time.Time
		backoff time.Duration
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.kick:
		case <-retry:
		}
		retry = nil
		records, err := h.load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			backoff = h.nextBackoff(backoff)
			h.log.Error("reload failed", "error", err, "retry_in", backoff)
			retry = time.After(backoff)
			continue
		}
		backoff = 0
		h.publish(records)
	}
}

func (h *Hub[T]) nextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return h.retryMin
	}
	return min(prev*2, h.retryMax)
}

func (h *Hub[T]) publish(records []T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	snap := Snapshot[T]{Version: h.version, Records: records, At: time.Now()}
	h.latest = &snap
	for _, s := range h.subs {
		s.deliver(snap)
	}
	h.log.Debug("snapshot published", "version", snap.Version, "records", len(records), "subscribers", len(h.subs))
}

func (h *Hub[T]) shutdown() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscription[T])
	h.done = true
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

// Subscribe registers a consumer. Its first snapshot is the latest one the
// hub has loaded, delivered immediately when available.
func (h *Hub[T]) Subscribe() (*Subscription[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return nil, ErrClosed
	}
	h.nextID++
	s := &Subscription[T]{
		id:  h.nextID,
		hub: h,
		ch:  make(chan Snapshot[T], 1),
	}
	h.subs[s.id] = s
	if h.latest != nil {
		s.deliver(*h.latest)
	}
	return s, nil
}

// Subscribers reports the number of live subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscription is a cancellable, restartable stream of snapshots.
type Subscription[T any] struct {
	id  uint64
	hub *Hub[T]
	ch  chan Snapshot[T]

	mu     sync.Mutex
	closed bool
}

// deliver keeps at most one pending snapshot, replacing a stale one.
func (s *Subscription[T]) deliver(snap Snapshot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan Snapshot[T] { return s.ch }

// Next blocks for the next snapshot.
func (s *Subscription[T]) Next(ctx context.Context) (Snapshot[T], error) {
	select {
	case <-ctx.Done():
		return Snapshot[T]{}, ctx.Err()
	case snap, ok := <-s.ch:
		if !ok {
			return Snapshot[T]{}, ErrClosed
		}
		return snap, nil
	}
}

// All yields snapshots until ctx is done or the subscription closes.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[Snapshot[T]] {
	return func(yield func(Snapshot[T]) bool) {
		for {
			snap, err := s.Next(ctx)
			if err != nil || !yield(snap) {
				return
			}
		}
	}
}

// Close stops delivery. A pending undelivered snapshot is discarded.
func (s *Subscription[T]) Close() {
	s.hub.remove(s.id)
	s.close()
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	select {
	case <-s.ch:
	default:
	}
	close(s.ch)
}
