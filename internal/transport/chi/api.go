package chi

import (
	"time"

	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// ErrorResponseCode is a machine-readable error code.
type ErrorResponseCode string

// Error codes.
const (
	ErrorResponseCodeBadRequest          ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized        ErrorResponseCode = "unauthorized"
	ErrorResponseCodeValidationFailed    ErrorResponseCode = "validation_failed"
	ErrorResponseCodeResourceNotFound    ErrorResponseCode = "resource_not_found"
	ErrorResponseCodeSyncFailed          ErrorResponseCode = "sync_failed"
	ErrorResponseCodeRemoteNotConfigured ErrorResponseCode = "remote_not_configured"
	ErrorResponseCodeLedgerContention    ErrorResponseCode = "ledger_contention"
	ErrorResponseCodeInternalError       ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// BudgetStatus is the ceiling state of one resource.
type BudgetStatus struct {
	Limit       tier.Limit `json:"limit"`
	Remaining   tier.Limit `json:"remaining"`
	IsExhausted bool       `json:"is_exhausted"`
	ResetsAt    *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the report of one resource.
type UsageResponse struct {
	Resource      string       `json:"resource"`
	Tier          string       `json:"tier"`
	Period        string       `json:"period"`
	PeriodStartAt time.Time    `json:"period_start_at"`
	PeriodEndAt   time.Time    `json:"period_end_at"`
	Used          int          `json:"used"`
	Pending       int          `json:"pending"`
	LastSyncedAt  *time.Time   `json:"last_synced_at,omitempty"`
	Budget        BudgetStatus `json:"budget"`
}

// UsageListResponse holds the reports of every resource.
type UsageListResponse struct {
	Items []UsageResponse `json:"items"`
}

// SpendResponse reports a consumption attempt.
type SpendResponse struct {
	Outcome   string     `json:"outcome"`
	Resource  string     `json:"resource"`
	N         int        `json:"n"`
	Remaining tier.Limit `json:"remaining"`
}

// CreditsRequest is the body of POST /v1/credits.
type CreditsRequest struct {
	Amount int `json:"amount"`
}

// CreditsResponse reports the balance after an optimistic credit.
type CreditsResponse struct {
	Balance int `json:"balance"`
	Pending int `json:"pending"`
}

// TierRequest is the body of PUT /v1/tier.
type TierRequest struct {
	Tier string `json:"tier"`
}

// TierResponse reports the entitlement now in force.
type TierResponse struct {
	tier.Entitlement
	SyncError *string `json:"sync_error,omitempty"`
}

// SyncResponse reports the cache after a sync.
type SyncResponse struct {
	Balance      int        `json:"balance"`
	IsUnlimited  bool       `json:"is_unlimited"`
	Pending      int        `json:"pending"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// HealthResponse aggregates component checks.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
