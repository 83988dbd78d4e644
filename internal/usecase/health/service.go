package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the remote balance is stale; local spending still works.
	Degraded Status = "degraded"
	// Unhealthy indicates the ledger store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store StorePinger
	sync  SyncReporter
}

// New creates a Service. sync can be nil (no remote configured).
func New(store StorePinger, sync SyncReporter) *Service {
	return &Service{store: store, sync: sync}
}

// Check pings the store and reads the last sync outcome.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
		status = Unhealthy
	} else {
		checks["store"] = CheckOK
	}

	if s.sync != nil {
		at, err := s.sync.SyncStatus()
		// no attempt yet counts as ok
		if !at.IsZero() && err != nil {
			checks["remote_sync"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["remote_sync"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
