package ledger

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// VerificationLedger caches the remote verification balance and applies
// local spends optimistically. Only ApplyRemoteBalance takes server values.
type VerificationLedger struct {
	mu     sync.Mutex
	store  VerificationStore
	loop   casLoop
	logger *zap.Logger
	now    func() time.Time
	last   quota.VerificationState
}

// NewVerificationLedger creates a verification ledger over store.
func NewVerificationLedger(store VerificationStore, opts ...Option) *VerificationLedger {
	o := buildOptions(opts)
	return &VerificationLedger{
		store:  store,
		loop:   casLoop{ledger: "verification", maxRetries: o.maxRetries, logger: o.logger},
		logger: o.logger,
		now:    o.now,
	}
}

// State returns the persisted record.
func (l *VerificationLedger) State(ctx context.Context) (quota.VerificationState, error) {
	st, _, err := l.store.LoadVerification(ctx)
	if err != nil {
		return quota.VerificationState{}, fmt.Errorf("load verification state: %w", err)
	}
	l.mu.Lock()
	l.last = st
	l.mu.Unlock()
	return st, nil
}

// Snapshot returns the last state this ledger loaded or wrote.
func (l *VerificationLedger) Snapshot() quota.VerificationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Remaining returns the spendable balance under limit. Total: a store
// failure answers from the last known snapshot.
func (l *VerificationLedger) Remaining(ctx context.Context, limit tier.Limit) tier.Limit {
	if limit.IsUnlimited() {
		return tier.Unlimited
	}
	st, err := l.State(ctx)
	if err != nil {
		l.logger.Warn("Verification ledger unavailable, using last snapshot", zap.Error(err))
		st = l.Snapshot()
	}
	return st.Remaining(limit)
}

// ApplyRemoteBalance reconciles the cache against an authoritative snapshot.
// A snapshot older than one already applied is ignored.
func (l *VerificationLedger) ApplyRemoteBalance(ctx context.Context, rb quota.RemoteBalance) (quota.VerificationState, error) {
	return l.update(ctx, func(st quota.VerificationState) (quota.VerificationState, bool) {
		if rb.StaleFor(st) {
			l.logger.Info("Stale remote balance ignored",
				zap.Time("as_of", rb.AsOf),
				zap.Time("synced_as_of", st.SyncedAsOf),
			)
			return st, false
		}
		return quota.Reconcile(st, rb, l.now()), true
	})
}

// MarkUnlimited caches the unlimited flag without a server snapshot.
func (l *VerificationLedger) MarkUnlimited(ctx context.Context) (quota.VerificationState, error) {
	return l.update(ctx, func(st quota.VerificationState) (quota.VerificationState, bool) {
		return quota.MarkUnlimited(st, l.now()), true
	})
}

// Credit raises the balance optimistically. The next sync overwrites it.
func (l *VerificationLedger) Credit(ctx context.Context, n int) (quota.VerificationState, error) {
	if n < 1 {
		return quota.VerificationState{}, fmt.Errorf("credit %d: %w", n, domain.ErrInvalidAmount)
	}
	var overflow bool
	st, err := l.update(ctx, func(st quota.VerificationState) (quota.VerificationState, bool) {
		overflow = n > math.MaxInt-st.Balance
		if overflow {
			return st, false
		}
		st.Balance += n
		st.Pending = appendOp(st.Pending, quota.PendingOp{
			ID:   uuid.NewString(),
			Kind: quota.OpCredit,
			N:    n,
			At:   l.now(),
		})
		return st, true
	})
	if err != nil {
		return quota.VerificationState{}, err
	}
	if overflow {
		return quota.VerificationState{}, fmt.Errorf("credit %d on balance %d: %w", n, st.Balance, domain.ErrInvalidAmount)
	}
	return st, nil
}

// DropUnlimited clears a cached unlimited flag so a downgraded session
// gates on the cached balance until the next sync lands.
func (l *VerificationLedger) DropUnlimited(ctx context.Context) (quota.VerificationState, error) {
	return l.update(ctx, func(st quota.VerificationState) (quota.VerificationState, bool) {
		if !st.Unlimited {
			return st, false
		}
		st.Unlimited = false
		return st, true
	})
}

// tryConsume spends n verifications iff the balance covers them.
// Unlimited (tier or cached flag) succeeds without touching the balance.
func (l *VerificationLedger) tryConsume(ctx context.Context, limit tier.Limit, n int) (bool, error) {
	if limit.IsUnlimited() {
		return true, nil
	}

	var granted bool
	_, err := l.update(ctx, func(st quota.VerificationState) (quota.VerificationState, bool) {
		granted = false
		if st.Unlimited {
			granted = true
			return st, false
		}
		if st.Balance < n {
			return st, false
		}
		st.Balance -= n
		st.Pending = appendOp(st.Pending, quota.PendingOp{
			ID:   uuid.NewString(),
			Kind: quota.OpSpend,
			N:    n,
			At:   l.now(),
		})
		granted = true
		return st, true
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// update runs fn in a load-modify-CAS loop under the ledger lock.
// fn reports whether its result must be written.
func (l *VerificationLedger) update(
	ctx context.Context,
	fn func(quota.VerificationState) (quota.VerificationState, bool),
) (quota.VerificationState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out quota.VerificationState
	err := l.loop.run(ctx, func() error {
		st, ver, err := l.store.LoadVerification(ctx)
		if err != nil {
			return err
		}
		next, write := fn(st)
		if write {
			if err := l.store.SaveVerification(ctx, next, ver); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return quota.VerificationState{}, err
	}
	l.last = out
	return out, nil
}

// appendOp appends op to a copy of ops, compacting the oldest entries past maxPendingOps.
func appendOp(ops []quota.PendingOp, op quota.PendingOp) []quota.PendingOp {
	out := append(slices.Clone(ops), op)
	if over := len(out) - maxPendingOps; over > 0 {
		out = slices.Delete(out, 0, over)
	}
	return out
}
