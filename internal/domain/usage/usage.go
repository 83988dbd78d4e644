package usage

import (
	"fmt"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/usage/budget"
)

// Resource is a consumable the gate meters.
type Resource string

// Metered resources.
const (
	Search       Resource = "search"
	Verification Resource = "verification"
)

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	switch r := Resource(s); r {
	case Search, Verification:
		return r, nil
	default:
		return "", fmt.Errorf("resource %q: %w", s, domain.ErrUnknownResource)
	}
}

// Outcome is the result of a consumption attempt.
type Outcome string

// Consumption outcomes. Denied is a normal branch, not a failure.
const (
	Granted Outcome = "granted"
	Denied  Outcome = "denied"
)

// Period is the aggregation granularity.
type Period string

// Period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// PeriodFor returns the reset period of r.
func PeriodFor(r Resource) Period {
	if r == Search {
		return PeriodDay
	}
	return PeriodMonth
}

// Report is a read model of one resource for display widgets.
type Report struct {
	resource     Resource
	tier         string
	period       Period
	periodStart  int64
	periodEnd    int64
	used         int
	pending      int
	lastSyncedAt int64
	budget       budget.Budget
}

// ReportParams groups NewReport inputs.
type ReportParams struct {
	Resource     Resource
	Tier         string
	PeriodStart  int64
	PeriodEnd    int64
	Used         int
	Pending      int
	LastSyncedAt int64
	Budget       budget.Budget
}

// NewReport creates a usage report.
func NewReport(p ReportParams) Report {
	return Report{
		resource:     p.Resource,
		tier:         p.Tier,
		period:       PeriodFor(p.Resource),
		periodStart:  p.PeriodStart,
		periodEnd:    p.PeriodEnd,
		used:         p.Used,
		pending:      p.Pending,
		lastSyncedAt: p.LastSyncedAt,
		budget:       p.Budget,
	}
}

// Resource returns the metered resource.
func (r *Report) Resource() Resource { return r.resource }

// Tier returns the tier the report was computed against.
func (r *Report) Tier() string { return r.tier }

// Period returns the reset granularity.
func (r *Report) Period() Period { return r.period }

// PeriodStart returns the period start timestamp (unix millis).
func (r *Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end timestamp (unix millis).
func (r *Report) PeriodEnd() int64 { return r.periodEnd }

// Used returns units consumed in the period, as far as this device knows.
func (r *Report) Used() int { return r.used }

// Pending returns the number of local operations awaiting a sync.
func (r *Report) Pending() int { return r.pending }

// LastSyncedAt returns the last successful sync (unix millis, 0 if never).
func (r *Report) LastSyncedAt() int64 { return r.lastSyncedAt }

// Budget returns the ceiling state.
func (r *Report) Budget() budget.Budget { return r.budget }
