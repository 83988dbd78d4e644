package usage

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	domusage "github.com/kailas-cloud/creditgate/internal/domain/usage"
	"github.com/kailas-cloud/creditgate/internal/domain/usage/budget"
)

// Service handles usage reporting.
type Service struct {
	acct AccountReader
}

// New creates a Service.
func New(acct AccountReader) *Service {
	return &Service{acct: acct}
}

// GetReport builds the report of one resource for its current period:
// the local day for search, the local month for verification.
func (s *Service) GetReport(ctx context.Context, r domusage.Resource) (domusage.Report, error) {
	ent := s.acct.Entitlement()
	sched := s.acct.Scheduler()

	switch r {
	case domusage.Search:
		start, end := sched.DayBounds()
		remaining := s.acct.Remaining(ctx, r)
		used := 0
		if st, err := s.acct.SearchState(ctx); err == nil {
			used = st.Used
		} else if !ent.DailySearch.IsUnlimited() {
			used = ent.DailySearch.Value() - remaining.Value()
		}
		return domusage.NewReport(domusage.ReportParams{
			Resource:    r,
			Tier:        ent.ID,
			PeriodStart: start.UnixMilli(),
			PeriodEnd:   end.UnixMilli(),
			Used:        used,
			Budget:      budget.New(ent.DailySearch, remaining, end.UnixMilli()),
		}), nil

	case domusage.Verification:
		start, end := sched.MonthBounds()
		remaining := s.acct.Remaining(ctx, r)
		// VerificationState falls back to the last snapshot on error.
		st, _ := s.acct.VerificationState(ctx)
		var synced int64
		if st.Synced() {
			synced = st.LastSyncedAt.UnixMilli()
		}
		return domusage.NewReport(domusage.ReportParams{
			Resource:     r,
			Tier:         ent.ID,
			PeriodStart:  start.UnixMilli(),
			PeriodEnd:    end.UnixMilli(),
			Used:         monthlyUsed(ent.MonthlyVerification, remaining),
			Pending:      len(st.Pending),
			LastSyncedAt: synced,
			// the server owns the verification reset
			Budget: budget.New(ent.MonthlyVerification, remaining, 0),
		}), nil

	default:
		return domusage.Report{}, fmt.Errorf("report %q: %w", r, domain.ErrUnknownResource)
	}
}

// GetAll returns reports for every metered resource.
func (s *Service) GetAll(ctx context.Context) []domusage.Report {
	out := make([]domusage.Report, 0, 2)
	for _, r := range []domusage.Resource{domusage.Search, domusage.Verification} {
		rep, _ := s.GetReport(ctx, r)
		out = append(out, rep)
	}
	return out
}

// monthlyUsed is the share of the monthly allotment no longer available.
func monthlyUsed(limit, remaining tier.Limit) int {
	if limit.IsUnlimited() || remaining.IsUnlimited() {
		return 0
	}
	return max(0, limit.Value()-remaining.Value())
}
