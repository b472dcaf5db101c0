package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("ledger:integrity").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "odyssey_jobs_total") {
		t.Fatalf("expected body to contain odyssey_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObservePostingClassifiesOutcome(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("post", nil, 3*time.Millisecond)
	metrics.ObservePosting("post", fmt.Errorf("entry 4: %w", shared.ErrImbalance), time.Millisecond)
	metrics.ObservePosting("post", fmt.Errorf("tx: %w", shared.ErrConcurrency), time.Millisecond)
	metrics.ObservePosting("reverse", errors.New("connection refused"), time.Millisecond)

	body := scrape(t, metrics)
	for _, want := range []string{
		`odyssey_ledger_postings_total{operation="post",outcome="ok"} 1`,
		`odyssey_ledger_postings_total{operation="post",outcome="rejected"} 1`,
		`odyssey_ledger_postings_total{operation="post",outcome="conflict"} 1`,
		`odyssey_ledger_postings_total{operation="reverse",outcome="error"} 1`,
		`odyssey_ledger_posting_duration_seconds_count{operation="post"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestSetIntegrity(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetIntegrity(2, 37.25)

	body := scrape(t, metrics)
	if !strings.Contains(body, "odyssey_ledger_drift_accounts 2") {
		t.Fatalf("drift gauge missing: %s", body)
	}
	if !strings.Contains(body, "odyssey_ledger_trial_balance_difference 37.25") {
		t.Fatalf("difference gauge missing: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePosting("post", nil, time.Millisecond)
	metrics.SetIntegrity(1, 0)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
