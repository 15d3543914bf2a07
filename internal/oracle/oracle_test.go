package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/pkg/chain"
)

const wallet = "0x52908400098527886e0f7030069857d2e4169ee7"

type fakeFetcher struct {
	mu      sync.Mutex
	amount  decimal.Decimal
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeFetcher) FetchBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amount, f.err
}

func (f *fakeFetcher) set(amount string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount != "" {
		f.amount = decimal.RequireFromString(amount)
	}
	f.err = err
}

type fakeLastKnown struct {
	mu    sync.Mutex
	snaps map[string]domain.BalanceSnapshot
}

func (l *fakeLastKnown) LoadBalance(_ context.Context, address string) (*domain.BalanceSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.snaps[address]; ok {
		return &s, nil
	}
	return nil, nil
}

func (l *fakeLastKnown) SaveBalance(_ context.Context, snap domain.BalanceSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snaps == nil {
		l.snaps = make(map[string]domain.BalanceSnapshot)
	}
	l.snaps[snap.Address] = snap
	return nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestOracle(f *fakeFetcher, lk LastKnown) (*Oracle, *testClock) {
	clock := &testClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	o := New(f, store, lk, Config{TTL: 20 * time.Second, FetchTimeout: time.Second}, zerolog.Nop())
	o.now = clock.now
	return o, clock
}

func TestClampTTL(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultTTL},
		{time.Second, MinTTL},
		{15 * time.Second, 15 * time.Second},
		{time.Minute, MaxTTL},
	}
	for _, tt := range tests {
		if got := ClampTTL(tt.in); got != tt.want {
			t.Errorf("ClampTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBalance_CachesWithinTTL(t *testing.T) {
	f := &fakeFetcher{}
	f.set("1500", nil)
	o, clock := newTestOracle(f, nil)
	ctx := context.Background()

	r, err := o.Balance(ctx, wallet)
	if err != nil || !r.Amount.Equal(decimal.NewFromInt(1500)) || r.Stale {
		t.Fatalf("Balance() = %+v, %v", r, err)
	}

	f.set("900", nil)
	clock.advance(19 * time.Second)
	r, _ = o.Balance(ctx, wallet)
	if !r.Amount.Equal(decimal.NewFromInt(1500)) || f.calls.Load() != 1 {
		t.Errorf("within TTL: amount %s after %d fetches, want cached 1500 after 1", r.Amount, f.calls.Load())
	}

	clock.advance(2 * time.Second)
	r, _ = o.Balance(ctx, wallet)
	if !r.Amount.Equal(decimal.NewFromInt(900)) || f.calls.Load() != 2 {
		t.Errorf("after TTL: amount %s after %d fetches, want 900 after 2", r.Amount, f.calls.Load())
	}
}

func TestBalance_AddressIsCaseInsensitive(t *testing.T) {
	f := &fakeFetcher{}
	f.set("10", nil)
	o, _ := newTestOracle(f, nil)

	o.Balance(context.Background(), "0x52908400098527886E0F7030069857D2E4169EE7")
	o.Balance(context.Background(), wallet)
	if f.calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", f.calls.Load())
	}
}

func TestBalance_FallsBackToLastKnown(t *testing.T) {
	f := &fakeFetcher{}
	f.set("1500", nil)
	o, clock := newTestOracle(f, &fakeLastKnown{})
	ctx := context.Background()

	first, err := o.Balance(ctx, wallet)
	if err != nil {
		t.Fatal(err)
	}

	clock.advance(time.Hour)
	f.set("", chain.ErrNetwork)
	r, err := o.Balance(ctx, wallet)
	if err != nil {
		t.Fatalf("Balance() error = %v, want fallback", err)
	}
	if !r.Stale || !r.Amount.Equal(decimal.NewFromInt(1500)) || !r.FetchedAt.Equal(first.FetchedAt) {
		t.Errorf("fallback reading = %+v", r)
	}
}

func TestBalance_UpstreamErrorWithoutSnapshot(t *testing.T) {
	f := &fakeFetcher{}
	f.set("", chain.ErrNetwork)
	o, _ := newTestOracle(f, &fakeLastKnown{})

	_, err := o.Balance(context.Background(), wallet)
	if !domain.IsKind(err, domain.KindUpstreamUnavailable) {
		t.Fatalf("Balance() error = %v, want upstream_unavailable", err)
	}
	if !errors.Is(err, chain.ErrNetwork) {
		t.Error("upstream error should wrap the network cause")
	}
}

func TestBalance_InvalidAddress(t *testing.T) {
	f := &fakeFetcher{}
	f.set("", chain.ErrInvalidAddress)
	o, _ := newTestOracle(f, &fakeLastKnown{})

	if _, err := o.Balance(context.Background(), "nope"); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Balance() error = %v, want validation", err)
	}
}

func TestBalance_CollapsesConcurrentMisses(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	f.set("42", nil)
	o, _ := newTestOracle(f, nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Reading, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = o.Balance(context.Background(), wallet)
		}(i)
	}

	// Let the callers pile up on the in-flight fetch before releasing it.
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", f.calls.Load())
	}
	for i, r := range results {
		if !r.Amount.Equal(decimal.NewFromInt(42)) {
			t.Errorf("caller %d got %s", i, r.Amount)
		}
	}
}

func TestLiveBalance_BypassesCacheAndNeverFallsBack(t *testing.T) {
	f := &fakeFetcher{}
	f.set("100", nil)
	o, _ := newTestOracle(f, &fakeLastKnown{})
	ctx := context.Background()

	o.Balance(ctx, wallet)
	f.set("250", nil)
	got, err := o.LiveBalance(ctx, wallet)
	if err != nil || !got.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("LiveBalance() = %s, %v; want 250", got, err)
	}

	r, _ := o.Balance(ctx, wallet)
	if !r.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("live read should refresh the cache, got %s", r.Amount)
	}

	f.set("", chain.ErrNetwork)
	if _, err := o.LiveBalance(ctx, wallet); !domain.IsKind(err, domain.KindUpstreamUnavailable) {
		t.Errorf("LiveBalance() error = %v, want upstream_unavailable", err)
	}
}

type hangingFetcher struct{}

func (hangingFetcher) FetchBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	<-ctx.Done()
	return decimal.Zero, ctx.Err()
}

func TestBalance_FetchTimeoutFallsBack(t *testing.T) {
	fetchedAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	lk := &fakeLastKnown{}
	lk.SaveBalance(context.Background(), domain.BalanceSnapshot{Address: wallet, Amount: decimal.NewFromInt(1500), FetchedAt: fetchedAt})
	o := New(hangingFetcher{}, NewMemoryStore(), lk, Config{TTL: 20 * time.Second, FetchTimeout: 50 * time.Millisecond}, zerolog.Nop())

	// The caller's context never expires; only the fetch timeout bounds the call.
	ctx := context.Background()

	start := time.Now()
	r, err := o.Balance(ctx, wallet)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Balance() took %v, want it bounded by the fetch timeout", elapsed)
	}
	if err != nil {
		t.Fatalf("Balance() error = %v, want last-known fallback", err)
	}
	if !r.Stale || !r.Amount.Equal(decimal.NewFromInt(1500)) || !r.FetchedAt.Equal(fetchedAt) {
		t.Errorf("fallback reading = %+v", r)
	}

	start = time.Now()
	_, err = o.LiveBalance(ctx, wallet)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("LiveBalance() took %v, want it bounded by the fetch timeout", elapsed)
	}
	if !domain.IsKind(err, domain.KindUpstreamUnavailable) {
		t.Errorf("LiveBalance() error = %v, want upstream_unavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("LiveBalance() error = %v, want it to wrap the deadline", err)
	}
}

func TestMemoryStore_Expires(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Set(ctx, domain.BalanceSnapshot{Address: wallet, Amount: decimal.NewFromInt(1), FetchedAt: now}, 10*time.Second)
	if snap, _ := s.Get(ctx, wallet); snap == nil {
		t.Fatal("expected a hit")
	}
	now = now.Add(10 * time.Second)
	if snap, _ := s.Get(ctx, wallet); snap != nil {
		t.Error("expected the entry to expire")
	}
}
