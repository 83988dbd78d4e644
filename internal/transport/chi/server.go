package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	domusage "github.com/kailas-cloud/creditgate/internal/domain/usage"
	"github.com/kailas-cloud/creditgate/internal/logger"
	healthuc "github.com/kailas-cloud/creditgate/internal/usecase/health"
	usageuc "github.com/kailas-cloud/creditgate/internal/usecase/usage"
)

// Account is the credit session the API drives.
type Account interface {
	Spend(ctx context.Context, r domusage.Resource, n int) domusage.Outcome
	Remaining(ctx context.Context, r domusage.Resource) tier.Limit
	AddCredits(ctx context.Context, n int) (quota.VerificationState, error)
	SetTier(ctx context.Context, id string) (tier.Entitlement, error)
	Sync(ctx context.Context) error
	VerificationState(ctx context.Context) (quota.VerificationState, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the local credit API.
type Server struct {
	account       Account
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	metrics       http.Handler
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	account Account,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		account: account,
		usage:   usage,
		health:  health,
		logger:  logger,
		metrics: promhttp.Handler(),
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrUnknownResource, http.StatusNotFound, ErrorResponseCodeResourceNotFound),
		sentinelHandler(domain.ErrInvalidAmount, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrRemoteNotConfigured,
			http.StatusServiceUnavailable, ErrorResponseCodeRemoteNotConfigured),
		sentinelHandler(domain.ErrSyncFailed, http.StatusBadGateway, ErrorResponseCodeSyncFailed),
		sentinelHandler(domain.ErrContention, http.StatusConflict, ErrorResponseCodeLedgerContention),
	}
	return s
}

// WithMetricsHandler replaces the /metrics handler (custom registries).
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	if h != nil {
		s.metrics = h
	}
	return s
}

// ListUsage handles GET /v1/usage.
func (s *Server) ListUsage(w http.ResponseWriter, r *http.Request) {
	reports := s.usage.GetAll(r.Context())
	items := make([]UsageResponse, len(reports))
	for i := range reports {
		items[i] = usageToResponse(&reports[i])
	}
	writeJSON(w, http.StatusOK, UsageListResponse{Items: items})
}

// GetUsage handles GET /v1/usage/{resource}.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request, resource string) {
	res, err := domusage.ParseResource(resource)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	report, err := s.usage.GetReport(r.Context(), res)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageToResponse(&report))
}

// Spend handles POST /v1/spend/{resource}. A denial answers 402.
func (s *Server) Spend(w http.ResponseWriter, r *http.Request, resource string, params SpendParams) {
	res, err := domusage.ParseResource(resource)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	n := 1
	if params.N != nil {
		n = *params.N
	}
	if n < 1 {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "n must be at least 1")
		return
	}

	outcome := s.account.Spend(r.Context(), res, n)
	status := http.StatusOK
	if outcome == domusage.Denied {
		status = http.StatusPaymentRequired
	}
	writeJSON(w, status, SpendResponse{
		Outcome:   string(outcome),
		Resource:  string(res),
		N:         n,
		Remaining: s.account.Remaining(r.Context(), res),
	})
}

// AddCredits handles POST /v1/credits.
func (s *Server) AddCredits(w http.ResponseWriter, r *http.Request) {
	var req CreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	st, err := s.account.AddCredits(r.Context(), req.Amount)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditsResponse{Balance: st.Balance, Pending: len(st.Pending)})
}

// SetTier handles PUT /v1/tier. The tier switches even when the follow-up sync fails.
func (s *Server) SetTier(w http.ResponseWriter, r *http.Request) {
	var req TierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Tier == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "tier is required")
		return
	}

	ent, err := s.account.SetTier(r.Context(), req.Tier)
	resp := TierResponse{Entitlement: ent}
	if err != nil && !errors.Is(err, domain.ErrRemoteNotConfigured) {
		logger.FromContextOr(r.Context(), s.logger).Warn("Tier changed but sync failed", zap.Error(err))
		msg := safeDomainMessage(err)
		resp.SyncError = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

// Sync handles POST /v1/sync.
func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	if err := s.account.Sync(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	st, err := s.account.VerificationState(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncToResponse(st))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the outermost known sentinel text, hiding infrastructure details.
func safeDomainMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrUnknownResource,
		domain.ErrInvalidAmount,
		domain.ErrRemoteNotConfigured,
		domain.ErrSyncFailed,
		domain.ErrContention,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}

func usageToResponse(rep *domusage.Report) UsageResponse {
	b := rep.Budget()
	resp := UsageResponse{
		Resource:      string(rep.Resource()),
		Tier:          rep.Tier(),
		Period:        string(rep.Period()),
		PeriodStartAt: time.UnixMilli(rep.PeriodStart()).UTC(),
		PeriodEndAt:   time.UnixMilli(rep.PeriodEnd()).UTC(),
		Used:          rep.Used(),
		Pending:       rep.Pending(),
		Budget: BudgetStatus{
			Limit:       b.Limit(),
			Remaining:   b.Remaining(),
			IsExhausted: b.IsExhausted(),
		},
	}
	if rep.LastSyncedAt() > 0 {
		at := time.UnixMilli(rep.LastSyncedAt()).UTC()
		resp.LastSyncedAt = &at
	}
	if b.ResetsAt() > 0 {
		at := time.UnixMilli(b.ResetsAt()).UTC()
		resp.Budget.ResetsAt = &at
	}
	return resp
}

func syncToResponse(st quota.VerificationState) SyncResponse {
	resp := SyncResponse{
		Balance:     st.Balance,
		IsUnlimited: st.Unlimited,
		Pending:     len(st.Pending),
	}
	if st.Synced() {
		at := st.LastSyncedAt.UTC()
		resp.LastSyncedAt = &at
	}
	return resp
}
