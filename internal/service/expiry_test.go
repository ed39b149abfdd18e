package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// memLock is a single-process LockManager fake.
type memLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLock() *memLock { return &memLock{held: make(map[string]bool)} }

func (l *memLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func TestSweepOnceExpiresDueSignals(t *testing.T) {
	store := newMemSignalStore()
	bus := newMemBus()
	sweeper := NewExpirySweeper(store, bus, newMemLock(), time.Second, testLogger())
	ctx := context.Background()

	store.Create(ctx, pendingSignal("due1", "u1", -time.Second))
	store.Create(ctx, pendingSignal("due2", "u2", -time.Minute))
	store.Create(ctx, pendingSignal("fresh", "u1", time.Hour))

	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	for _, id := range []string{"due1", "due2"} {
		got, _ := store.GetByID(ctx, id)
		if got.Status != domain.SignalStatusExpired {
			t.Errorf("%s status = %s, want expired", id, got.Status)
		}
	}
	fresh, _ := store.GetByID(ctx, "fresh")
	if fresh.Status != domain.SignalStatusPending {
		t.Errorf("fresh status = %s, want pending", fresh.Status)
	}

	echoes := bus.publishedTo(domain.ChannelSignalsUpdated)
	if len(echoes) != 2 {
		t.Fatalf("signals:updated publishes = %d, want 2", len(echoes))
	}
	for _, m := range echoes {
		var sig domain.TradeSignal
		if err := json.Unmarshal(m.payload, &sig); err != nil {
			t.Fatalf("echo payload: %v", err)
		}
		if sig.Status != domain.SignalStatusExpired {
			t.Errorf("echoed status = %s, want expired", sig.Status)
		}
	}

	if got := bus.publishedTo(domain.NotificationChannel("u1")); len(got) != 1 {
		t.Errorf("u1 notifications = %d, want 1", len(got))
	}
	if got := bus.publishedTo(domain.NotificationChannel("u2")); len(got) != 1 {
		t.Errorf("u2 notifications = %d, want 1", len(got))
	}
}

func TestSweepOnceLockHeldIsNoop(t *testing.T) {
	store := newMemSignalStore()
	bus := newMemBus()
	locks := newMemLock()
	sweeper := NewExpirySweeper(store, bus, locks, time.Second, testLogger())
	ctx := context.Background()

	store.Create(ctx, pendingSignal("due1", "u1", -time.Second))

	unlock, err := locks.Acquire(ctx, "signal-expiry", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce while locked: %v", err)
	}

	got, _ := store.GetByID(ctx, "due1")
	if got.Status != domain.SignalStatusPending {
		t.Errorf("status = %s, want pending (sweep must yield to lock holder)", got.Status)
	}
	if len(bus.published) != 0 {
		t.Errorf("publishes = %d, want 0", len(bus.published))
	}
}

func TestSweepOnceSkipsDecidedSignals(t *testing.T) {
	store := newMemSignalStore()
	bus := newMemBus()
	svc := NewSignalService(store, bus, nil, testLogger())
	sweeper := NewExpirySweeper(store, bus, newMemLock(), time.Second, testLogger())
	ctx := context.Background()

	sig := pendingSignal("s1", "u1", -time.Second)
	store.Create(ctx, sig)
	if _, err := svc.Confirm(ctx, "s1", "u1", "web"); err != nil {
		t.Fatal(err)
	}
	before := len(bus.publishedTo(domain.ChannelSignalsUpdated))

	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	got, _ := store.GetByID(ctx, "s1")
	if got.Status != domain.SignalStatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
	if after := len(bus.publishedTo(domain.ChannelSignalsUpdated)); after != before {
		t.Errorf("sweep published %d extra echoes for a decided signal", after-before)
	}
}

func TestSweepOnceReleasesLockBetweenRuns(t *testing.T) {
	store := newMemSignalStore()
	bus := newMemBus()
	sweeper := NewExpirySweeper(store, bus, newMemLock(), time.Second, testLogger())
	ctx := context.Background()

	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
}

type failingExpireStore struct {
	*memSignalStore
}

func (f *failingExpireStore) ExpireDue(context.Context, time.Time) ([]domain.TradeSignal, error) {
	return nil, errors.New("database unreachable")
}

func TestSweepOnceSurfacesStoreError(t *testing.T) {
	store := &failingExpireStore{memSignalStore: newMemSignalStore()}
	sweeper := NewExpirySweeper(store, newMemBus(), newMemLock(), time.Second, testLogger())

	if err := sweeper.SweepOnce(context.Background()); err == nil {
		t.Fatal("expected error from failing store")
	}
}
