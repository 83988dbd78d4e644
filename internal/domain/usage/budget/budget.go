package budget

import "github.com/kailas-cloud/creditgate/internal/domain/tier"

// Budget is the ceiling state of one resource.
type Budget struct {
	limit     tier.Limit
	remaining tier.Limit
	resetsAt  int64 // unix millis, 0 when the server owns the reset
}

// New creates a Budget snapshot.
func New(limit, remaining tier.Limit, resetsAt int64) Budget {
	return Budget{
		limit:     limit,
		remaining: remaining,
		resetsAt:  resetsAt,
	}
}

// Limit returns the resource cap.
func (b Budget) Limit() tier.Limit { return b.limit }

// Remaining returns units left.
func (b Budget) Remaining() tier.Limit { return b.remaining }

// IsExhausted reports whether nothing is left to spend.
func (b Budget) IsExhausted() bool {
	return !b.remaining.IsUnlimited() && b.remaining.Value() == 0
}

// ResetsAt returns the reset timestamp (unix millis).
func (b Budget) ResetsAt() int64 { return b.resetsAt }
