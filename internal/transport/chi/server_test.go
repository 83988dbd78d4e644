package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/creditgate/internal/db/badger"
	"github.com/kailas-cloud/creditgate/internal/domain"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
	domusage "github.com/kailas-cloud/creditgate/internal/domain/usage"
	repoledger "github.com/kailas-cloud/creditgate/internal/repository/ledger"
	"github.com/kailas-cloud/creditgate/internal/usecase/account"
	healthuc "github.com/kailas-cloud/creditgate/internal/usecase/health"
	usageuc "github.com/kailas-cloud/creditgate/internal/usecase/usage"
)

// --- Mock fetcher ---

type stubFetcher struct {
	mu      sync.Mutex
	credits int
	err     error
}

func (f *stubFetcher) FetchCredits(_ context.Context) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits, false, f.err
}

// --- Helpers ---

type testAPI struct {
	handler http.Handler
	fetcher *stubFetcher
	account *account.Account
}

func newTestAPI(t *testing.T, tierID string, withRemote bool) *testAPI {
	t.Helper()
	store, err := badger.NewStore(badger.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	api := &testAPI{}
	deps := account.Deps{
		Store:    repoledger.New(store, domain.KeyPrefix, "api"),
		Tier:     tierID,
		Location: time.UTC,
	}
	if withRemote {
		api.fetcher = &stubFetcher{credits: 3}
		deps.Fetcher = api.fetcher
	}
	api.account = account.New(deps)

	var reporter healthuc.SyncReporter
	if withRemote {
		reporter = api.account
	}
	srv := NewServer(api.account, usageuc.New(api.account), healthuc.New(store, reporter), zap.NewNop()).
		WithMetricsHandler(promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}))
	api.handler = Handler(srv)
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

// --- Spend ---

func TestSpend_GrantedThenDenied(t *testing.T) {
	api := newTestAPI(t, tier.Free, false)

	rr := api.do(t, http.MethodPost, "/v1/spend/search?n=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[SpendResponse](t, rr)
	if resp.Outcome != "granted" || resp.N != 10 || resp.Remaining != tier.Finite(0) {
		t.Errorf("resp = %+v", resp)
	}

	rr = api.do(t, http.MethodPost, "/v1/spend/search", nil)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rr.Code)
	}
	if resp := decode[SpendResponse](t, rr); resp.Outcome != "denied" || resp.N != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSpend_BadInput(t *testing.T) {
	api := newTestAPI(t, tier.Free, false)

	tests := []struct {
		name string
		path string
		want int
		code ErrorResponseCode
	}{
		{"unknown resource", "/v1/spend/sms", http.StatusNotFound, ErrorResponseCodeResourceNotFound},
		{"zero n", "/v1/spend/search?n=0", http.StatusBadRequest, ErrorResponseCodeValidationFailed},
		{"non-numeric n", "/v1/spend/search?n=lots", http.StatusBadRequest, ErrorResponseCodeBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, tc.path, nil)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
			if resp := decode[ErrorResponse](t, rr); resp.Code != tc.code {
				t.Errorf("code = %s, want %s", resp.Code, tc.code)
			}
		})
	}
}

// --- Usage ---

func TestUsage_ListAndGet(t *testing.T) {
	api := newTestAPI(t, tier.Basic, false)
	api.do(t, http.MethodPost, "/v1/spend/search?n=2", nil)

	rr := api.do(t, http.MethodGet, "/v1/usage", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	list := decode[UsageListResponse](t, rr)
	if len(list.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(list.Items))
	}

	rr = api.do(t, http.MethodGet, "/v1/usage/search", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	rep := decode[UsageResponse](t, rr)
	if rep.Period != "day" || rep.Used != 2 || rep.Budget.Limit != tier.Finite(50) || rep.Budget.Remaining != tier.Finite(48) {
		t.Errorf("report = %+v", rep)
	}
	if rep.Budget.ResetsAt == nil || !rep.Budget.ResetsAt.Equal(rep.PeriodEndAt) {
		t.Error("search budget should reset at period end")
	}

	if rr := api.do(t, http.MethodGet, "/v1/usage/sms", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown resource status = %d, want 404", rr.Code)
	}
}

func TestUsage_UnlimitedRendersSentinel(t *testing.T) {
	api := newTestAPI(t, tier.UnlimitedTier, false)

	rr := api.do(t, http.MethodGet, "/v1/usage/verification", nil)
	if !strings.Contains(rr.Body.String(), `"remaining":"unlimited"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

// --- Credits / tier / sync ---

func TestAddCredits(t *testing.T) {
	api := newTestAPI(t, tier.Pro, false)

	rr := api.do(t, http.MethodPost, "/v1/credits", CreditsRequest{Amount: 5})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if resp := decode[CreditsResponse](t, rr); resp.Balance != 5 || resp.Pending != 1 {
		t.Errorf("resp = %+v", resp)
	}

	rr = api.do(t, http.MethodPost, "/v1/credits", CreditsRequest{Amount: math.MaxInt})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("overflowing amount status = %d, want 400", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != ErrorResponseCodeValidationFailed {
		t.Errorf("code = %s", resp.Code)
	}
	if got := api.account.Remaining(context.Background(), domusage.Verification); got != tier.Finite(5) {
		t.Errorf("remaining after rejected credit = %s, want 5", got)
	}

	if rr := api.do(t, http.MethodPost, "/v1/credits", CreditsRequest{Amount: 0}); rr.Code != http.StatusBadRequest {
		t.Errorf("zero amount status = %d, want 400", rr.Code)
	}
	if rr := api.do(t, http.MethodPost, "/v1/credits", "{"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rr.Code)
	}
}

func TestSetTier(t *testing.T) {
	api := newTestAPI(t, tier.Free, false)

	rr := api.do(t, http.MethodPut, "/v1/tier", TierRequest{Tier: "unlimited"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"tier":"unlimited"`) || !strings.Contains(body, `"daily_search_limit":"unlimited"`) {
		t.Errorf("body = %s", body)
	}
	if strings.Contains(body, "sync_error") {
		t.Errorf("unexpected sync error: %s", body)
	}

	rr = api.do(t, http.MethodPost, "/v1/spend/verification?n=1000", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("spend after upgrade status = %d", rr.Code)
	}

	if rr := api.do(t, http.MethodPut, "/v1/tier", TierRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty tier status = %d, want 400", rr.Code)
	}
}

func TestSetTier_SyncFailureStillSwitches(t *testing.T) {
	api := newTestAPI(t, tier.Free, true)
	api.fetcher.err = errors.New("offline")

	rr := api.do(t, http.MethodPut, "/v1/tier", TierRequest{Tier: "pro"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[TierResponse](t, rr)
	if resp.ID != tier.Pro || resp.SyncError == nil {
		t.Errorf("resp = %+v", resp)
	}
	if api.account.Entitlement().ID != tier.Pro {
		t.Error("tier not switched")
	}
}

func TestSync(t *testing.T) {
	api := newTestAPI(t, tier.Basic, true)

	rr := api.do(t, http.MethodPost, "/v1/sync", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decode[SyncResponse](t, rr)
	if resp.Balance != 3 || resp.LastSyncedAt == nil {
		t.Errorf("resp = %+v", resp)
	}

	api.fetcher.mu.Lock()
	api.fetcher.err = errors.New("timeout")
	api.fetcher.mu.Unlock()

	rr = api.do(t, http.MethodPost, "/v1/sync", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("failed sync status = %d, want 502", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != ErrorResponseCodeSyncFailed {
		t.Errorf("code = %s", resp.Code)
	}

	// health reports the stale balance without failing the check
	rr = api.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if h := decode[HealthResponse](t, rr); h.Status != "degraded" || h.Checks["remote_sync"] != "error" {
		t.Errorf("health = %+v", h)
	}
}

func TestSync_NoRemote(t *testing.T) {
	api := newTestAPI(t, tier.Basic, false)

	rr := api.do(t, http.MethodPost, "/v1/sync", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

// --- Health / metrics ---

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, tier.Free, false)

	rr := api.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if h := decode[HealthResponse](t, rr); h.Status != "ok" || h.Checks["store"] != "ok" {
		t.Errorf("health = %+v", h)
	}

	if rr := api.do(t, http.MethodGet, "/metrics", nil); rr.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rr.Code)
	}
}
