package creditgate

import (
	"time"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	domusage "github.com/kailas-cloud/creditgate/internal/domain/usage"
)

// Resource is a metered capability.
type Resource = domusage.Resource

// Resources.
const (
	Search       = domusage.Search
	Verification = domusage.Verification
)

// Outcome is the answer to a spend.
type Outcome = domusage.Outcome

// Outcomes.
const (
	Granted = domusage.Granted
	Denied  = domusage.Denied
)

// Limit is a finite count or Unlimited.
type Limit = tier.Limit

// Unlimited is the sentinel for uncapped resources.
var Unlimited = tier.Unlimited

// Finite returns a limit of n.
func Finite(n int) Limit { return tier.Finite(n) }

// Entitlement holds the ceilings of one tier.
type Entitlement = tier.Entitlement

// Built-in tiers.
const (
	TierFree      = tier.Free
	TierBasic     = tier.Basic
	TierPro       = tier.Pro
	TierUnlimited = tier.UnlimitedTier
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidAmount       = domain.ErrInvalidAmount
	ErrUnknownResource     = domain.ErrUnknownResource
	ErrContention          = domain.ErrContention
	ErrSyncFailed          = domain.ErrSyncFailed
	ErrRemoteNotConfigured = domain.ErrRemoteNotConfigured
)

// UsagePeriod is the window a report covers.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageReport describes one resource over its current window.
type UsageReport struct {
	Resource     Resource
	Tier         string
	Period       UsagePeriod
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Used         int
	Pending      int       // verification only: local ops awaiting sync
	LastSyncedAt time.Time // verification only; zero until the first sync
	Budget       BudgetStatus
}

// BudgetStatus is the ceiling state of a resource.
type BudgetStatus struct {
	Limit       Limit
	Remaining   Limit
	IsExhausted bool
	ResetsAt    time.Time // zero when the reset is owned by the remote service
}

// HealthStatus represents the aggregated client health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

func toUsageReport(r *domusage.Report) UsageReport {
	b := r.Budget()
	out := UsageReport{
		Resource:    r.Resource(),
		Tier:        r.Tier(),
		Period:      UsagePeriod(r.Period()),
		PeriodStart: time.UnixMilli(r.PeriodStart()).UTC(),
		PeriodEnd:   time.UnixMilli(r.PeriodEnd()).UTC(),
		Used:        r.Used(),
		Pending:     r.Pending(),
		Budget: BudgetStatus{
			Limit:       b.Limit(),
			Remaining:   b.Remaining(),
			IsExhausted: b.IsExhausted(),
		},
	}
	if r.LastSyncedAt() > 0 {
		out.LastSyncedAt = time.UnixMilli(r.LastSyncedAt()).UTC()
	}
	if b.ResetsAt() > 0 {
		out.Budget.ResetsAt = time.UnixMilli(b.ResetsAt()).UTC()
	}
	return out
}
