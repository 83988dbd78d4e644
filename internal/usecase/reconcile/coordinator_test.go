package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// --- Mocks ---

type fakeLedger struct {
	mu      sync.Mutex
	st      quota.VerificationState
	applied []quota.RemoteBalance
	now     func() time.Time
}

func (f *fakeLedger) State(_ context.Context) (quota.VerificationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st, nil
}

func (f *fakeLedger) Snapshot() quota.VerificationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeLedger) ApplyRemoteBalance(_ context.Context, rb quota.RemoteBalance) (quota.VerificationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, rb)
	f.st = quota.Reconcile(f.st, rb, f.now())
	return f.st, nil
}

func (f *fakeLedger) MarkUnlimited(_ context.Context) (quota.VerificationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = quota.MarkUnlimited(f.st, f.now())
	return f.st, nil
}

func (f *fakeLedger) DropUnlimited(_ context.Context) (quota.VerificationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Unlimited = false
	return f.st, nil
}

type fakeFetcher struct {
	calls     atomic.Int32
	credits   int
	unlimited bool
	err       error
	block     chan struct{}
	started   chan struct{}
	onFetch   func()
}

func (f *fakeFetcher) FetchCredits(ctx context.Context) (int, bool, error) {
	f.calls.Add(1)
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
	return f.credits, f.unlimited, f.err
}

var t0 = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0 }

// --- Tests ---

func TestSync_AppliesRemoteBalance(t *testing.T) {
	led := &fakeLedger{st: quota.VerificationState{Balance: 10}, now: fixedNow}
	f := &fakeFetcher{credits: 7}
	c := New(led, f, WithClock(fixedNow))

	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if led.st.Balance != 7 || !led.st.LastSyncedAt.Equal(t0) {
		t.Errorf("state = %+v", led.st)
	}
	if at, err := c.LastResult(); at.IsZero() || err != nil {
		t.Errorf("last result = %v, %v", at, err)
	}
}

func TestSync_FailureKeepsCache(t *testing.T) {
	synced := t0.Add(-time.Hour)
	led := &fakeLedger{st: quota.VerificationState{Balance: 10, LastSyncedAt: synced}, now: fixedNow}
	f := &fakeFetcher{err: errors.New("502 bad gateway")}
	c := New(led, f, WithClock(fixedNow))

	err := c.Sync(context.Background())
	if !errors.Is(err, domain.ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if led.st.Balance != 10 || !led.st.LastSyncedAt.Equal(synced) || len(led.applied) != 0 {
		t.Errorf("failed sync touched the cache: %+v", led.st)
	}
	if _, lastErr := c.LastResult(); lastErr == nil {
		t.Error("expected last error to be recorded")
	}
}

func TestSync_Timeout(t *testing.T) {
	led := &fakeLedger{st: quota.VerificationState{Balance: 4}, now: fixedNow}
	f := &fakeFetcher{block: make(chan struct{})}
	c := New(led, f, WithTimeout(20*time.Millisecond))

	err := c.Sync(context.Background())
	if !errors.Is(err, domain.ErrSyncFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timed-out sync failure, got %v", err)
	}
	if led.st.Balance != 4 {
		t.Errorf("balance = %d, want 4", led.st.Balance)
	}
}

func TestSync_AsOfTakenBeforeFetch(t *testing.T) {
	var (
		mu  sync.Mutex
		now = t0
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	led := &fakeLedger{now: clock}
	f := &fakeFetcher{credits: 3, onFetch: func() {
		mu.Lock()
		now = now.Add(5 * time.Second)
		mu.Unlock()
	}}
	c := New(led, f, WithClock(clock))

	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(led.applied) != 1 || !led.applied[0].AsOf.Equal(t0) {
		t.Fatalf("applied = %+v, want AsOf %v", led.applied, t0)
	}
}

func TestSync_SingleInFlightRequest(t *testing.T) {
	led := &fakeLedger{now: fixedNow}
	f := &fakeFetcher{credits: 5, block: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(led, f)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.Sync(ctx)
	}()
	<-f.started

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Sync(ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.block)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("sync: %v", err)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestSync_NoFetcher(t *testing.T) {
	c := New(&fakeLedger{now: fixedNow}, nil)
	if err := c.Sync(context.Background()); !errors.Is(err, domain.ErrRemoteNotConfigured) {
		t.Fatalf("expected ErrRemoteNotConfigured, got %v", err)
	}
}

func TestStart_ReportsBackgroundSync(t *testing.T) {
	led := &fakeLedger{st: quota.VerificationState{Balance: 2}, now: fixedNow}
	c := New(led, &fakeFetcher{credits: 9})

	select {
	case err := <-c.Start(context.Background()):
		if err != nil {
			t.Fatalf("start sync: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("start did not report")
	}
	if led.Snapshot().Balance != 9 {
		t.Errorf("balance = %d, want 9", led.Snapshot().Balance)
	}
}

func TestOnTierChange_UnlimitedSkipsNetwork(t *testing.T) {
	synced := t0.Add(-time.Hour)
	led := &fakeLedger{st: quota.VerificationState{Balance: 6, LastSyncedAt: synced}, now: fixedNow}
	f := &fakeFetcher{credits: 1}
	c := New(led, f, WithClock(fixedNow))

	if err := c.OnTierChange(context.Background(), tier.DefaultPolicy().LimitsFor(tier.UnlimitedTier)); err != nil {
		t.Fatalf("tier change: %v", err)
	}
	if f.calls.Load() != 0 {
		t.Errorf("unlimited tier fetched %d times", f.calls.Load())
	}
	if !led.st.Unlimited || led.st.Balance != 6 {
		t.Errorf("state = %+v", led.st)
	}
	if led.st.Remaining(tier.Finite(25)) != tier.Unlimited {
		t.Error("remaining should be unlimited")
	}
	if !led.st.LastSyncedAt.Equal(synced) || len(led.applied) != 0 {
		t.Errorf("local tier change reported as a sync: %+v", led.st)
	}
}

func TestOnTierChange_UnlimitedWinsOverInFlightSync(t *testing.T) {
	var mu sync.Mutex
	now := t0
	clk := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	led := &fakeLedger{st: quota.VerificationState{Balance: 6}, now: clk}
	f := &fakeFetcher{credits: 2, block: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(led, f, WithClock(clk))

	done := make(chan error, 1)
	go func() { done <- c.Sync(context.Background()) }()
	<-f.started

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	if err := c.OnTierChange(context.Background(), tier.DefaultPolicy().LimitsFor(tier.UnlimitedTier)); err != nil {
		t.Fatalf("tier change: %v", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st := led.Snapshot(); !st.Unlimited || st.Balance != 6 {
		t.Errorf("fetch issued before the tier change overrode it: %+v", st)
	}
}

func TestOnTierChange_DowngradeDropsFlagAndSyncs(t *testing.T) {
	led := &fakeLedger{st: quota.VerificationState{Balance: 6, Unlimited: true}, now: fixedNow}
	f := &fakeFetcher{credits: 40}
	c := New(led, f, WithClock(fixedNow))

	if err := c.OnTierChange(context.Background(), tier.DefaultPolicy().LimitsFor(tier.Basic)); err != nil {
		t.Fatalf("tier change: %v", err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", f.calls.Load())
	}
	if led.st.Unlimited || led.st.Balance != 40 {
		t.Errorf("state = %+v", led.st)
	}
}

func TestOnTierChange_DowngradeWithoutRemote(t *testing.T) {
	led := &fakeLedger{st: quota.VerificationState{Balance: 6, Unlimited: true}, now: fixedNow}
	c := New(led, nil)

	if err := c.OnTierChange(context.Background(), tier.DefaultPolicy().LimitsFor(tier.Free)); err != nil {
		t.Fatalf("tier change: %v", err)
	}
	if led.st.Unlimited {
		t.Error("unlimited flag should be dropped")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := &fakeFetcher{credits: 1}
	c := New(&fakeLedger{now: fixedNow}, f)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	if f.calls.Load() == 0 {
		t.Error("expected at least one periodic sync")
	}
}
