package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/db"
	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/metrics"
)

const (
	defaultMaxRetries = 8
	// maxPendingOps bounds the optimistic log between syncs; oldest ops are compacted first.
	maxPendingOps = 1024
)

type options struct {
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a ledger.
type Option func(*options)

// WithMaxRetries bounds compare-and-swap attempts per operation.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp pending operations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		maxRetries: defaultMaxRetries,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// casLoop retries a load-modify-CAS attempt while it loses version races.
type casLoop struct {
	ledger     string
	maxRetries int
	logger     *zap.Logger
}

func (c casLoop) run(ctx context.Context, attempt func() error) error {
	for i := range c.maxRetries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s ledger: %w", c.ledger, err)
		}
		err := attempt()
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return err
		}
		metrics.CASConflictsTotal.WithLabelValues(c.ledger).Inc()
		c.logger.Debug("Ledger version conflict, retrying",
			zap.String("ledger", c.ledger),
			zap.Int("attempt", i+1),
		)
	}
	return fmt.Errorf("%s ledger after %d attempts: %w", c.ledger, c.maxRetries, domain.ErrContention)
}
