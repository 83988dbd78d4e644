package ledger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// SearchLedger tracks daily search usage. The stored day is compared to today
// on every access and a stale record is reset and persisted before anything else.
type SearchLedger struct {
	mu     sync.Mutex
	store  SearchStore
	loop   casLoop
	logger *zap.Logger
	last   quota.SearchState
}

// NewSearchLedger creates a search ledger over store.
func NewSearchLedger(store SearchStore, opts ...Option) *SearchLedger {
	o := buildOptions(opts)
	return &SearchLedger{
		store:  store,
		loop:   casLoop{ledger: "search", maxRetries: o.maxRetries, logger: o.logger},
		logger: o.logger,
	}
}

// State returns the record as of today, persisting a rollover if one is due.
func (l *SearchLedger) State(ctx context.Context, today quota.Day) (quota.SearchState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out quota.SearchState
	err := l.loop.run(ctx, func() error {
		st, ver, err := l.store.LoadSearch(ctx)
		if err != nil {
			return err
		}
		next, changed := quota.Rollover(st, today)
		if changed {
			if err := l.store.SaveSearch(ctx, next, ver); err != nil {
				return err
			}
			l.logRollover(st, today)
		}
		out = next
		return nil
	})
	if err != nil {
		return quota.SearchState{}, err
	}
	l.last = out
	return out, nil
}

// Remaining returns what is left today under limit. Total: a store failure
// answers from the last known snapshot.
func (l *SearchLedger) Remaining(ctx context.Context, today quota.Day, limit tier.Limit) tier.Limit {
	if limit.IsUnlimited() {
		return tier.Unlimited
	}
	st, err := l.State(ctx, today)
	if err != nil {
		l.logger.Warn("Search ledger unavailable, using last snapshot", zap.Error(err))
		st = l.snapshot(today)
	}
	return st.Remaining(limit)
}

// snapshot returns the last state seen, rolled over to today in memory.
func (l *SearchLedger) snapshot(today quota.Day) quota.SearchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, _ := quota.Rollover(l.last, today)
	return st
}

// tryConsume spends n searches iff used+n stays within limit.
// A denial leaves the count unchanged.
func (l *SearchLedger) tryConsume(ctx context.Context, today quota.Day, limit tier.Limit, n int) (bool, error) {
	if limit.IsUnlimited() {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var granted bool
	err := l.loop.run(ctx, func() error {
		granted = false
		st, ver, err := l.store.LoadSearch(ctx)
		if err != nil {
			return err
		}
		next, changed := quota.Rollover(st, today)

		if !limit.Allows(next.Used, n) {
			if changed {
				if err := l.store.SaveSearch(ctx, next, ver); err != nil {
					return err
				}
				l.logRollover(st, today)
			}
			l.last = next
			return nil
		}

		next.Used += n
		if err := l.store.SaveSearch(ctx, next, ver); err != nil {
			return err
		}
		if changed {
			l.logRollover(st, today)
		}
		l.last = next
		granted = true
		return nil
	})
	return granted, err
}

func (l *SearchLedger) logRollover(prev quota.SearchState, today quota.Day) {
	l.logger.Debug("Search quota rolled over",
		zap.String("from", string(prev.Day)),
		zap.String("to", string(today)),
		zap.Int("used_before", prev.Used),
	)
}
