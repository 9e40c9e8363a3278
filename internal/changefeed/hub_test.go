package changefeed

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeCollection struct {
	mu    sync.Mutex
	items []string
}

func (f *fakeCollection) add(v string) {
	f.mu.Lock()
	f.items = append(f.items, v)
	f.mu.Unlock()
}

func (f *fakeCollection) load(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items), nil
}

func startHub(t *testing.T, coll *fakeCollection) *Hub[string] {
	t.Helper()
	hub := NewHub("items", coll.load, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func nextWithin(t *testing.T, sub *Subscription[string]) Snapshot[string] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return snap
}

func TestSubscribeReceivesCurrentCollection(t *testing.T) {
	coll := &fakeCollection{items: []string{"a", "b"}}
	hub := startHub(t, coll)

	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	snap := nextWithin(t, sub)
	if !slices.Equal(snap.Records, []string{"a", "b"}) {
		t.Errorf("first snapshot = %v, want [a b]", snap.Records)
	}
}

func TestLatestSnapshotMatchesStoreAfterWrites(t *testing.T) {
	coll := &fakeCollection{}
	hub := startHub(t, coll)
	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	const writes = 25
	for i := 0; i < writes; i++ {
		coll.add(string(rune('a' + i)))
		hub.Notify()
	}

	deadline := time.After(2 * time.Second)
	var last uint64
	for {
		select {
		case snap := <-sub.C():
			if snap.Version <= last {
				t.Fatalf("version went from %d to %d", last, snap.Version)
			}
			last = snap.Version
			if len(snap.Records) == writes {
				return
			}
		case <-deadline:
			t.Fatalf("never observed a snapshot with %d records", writes)
		}
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	coll := &fakeCollection{items: []string{"a"}}
	hub := startHub(t, coll)
	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	other, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer other.Close()

	sub.Close()
	coll.add("b")
	hub.Notify()

	if _, ok := <-sub.C(); ok {
		t.Error("received a snapshot after Close")
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed", err)
	}

	// the other subscriber keeps receiving
	for {
		snap := nextWithin(t, other)
		if len(snap.Records) == 2 {
			break
		}
	}
	if hub.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", hub.Subscribers())
	}
}

func TestRouterDispatch(t *testing.T) {
	coll := &fakeCollection{}
	hub := NewHub("items", coll.load, nil)
	<-hub.kick // drain the initial load signal

	r := NewRouter(hub)
	r.Dispatch("unknown")
	select {
	case <-hub.kick:
		t.Fatal("unknown collection triggered a reload")
	default:
	}
	r.Dispatch("items")
	select {
	case <-hub.kick:
	default:
		t.Fatal("known collection did not trigger a reload")
	}
}

func TestFailedLoadIsRetried(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	load := func(context.Context) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return nil, errors.New("connection refused")
		}
		return []string{"a"}, nil
	}
	hub := NewHub("items", load, nil)
	hub.retryMin = 5 * time.Millisecond
	hub.retryMax = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	snap := nextWithin(t, sub)
	if !slices.Equal(snap.Records, []string{"a"}) {
		t.Errorf("records = %v, want [a]", snap.Records)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("loads = %d, want 3", calls)
	}
}

func TestBackoffIsBounded(t *testing.T) {
	hub := NewHub("items", (&fakeCollection{}).load, nil)
	hub.retryMin = time.Second
	hub.retryMax = 4 * time.Second
	var got []time.Duration
	var d time.Duration
	for range 4 {
		d = hub.nextBackoff(d)
		got = append(got, d)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	if !slices.Equal(got, want) {
		t.Errorf("backoff = %v, want %v", got, want)
	}
}
