package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWrapHandlerCountsByRouteAndStatus(t *testing.T) {
	m := New()
	h := m.WrapHandler("/api/message", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, target := range []string{"/api/message", "/api/message", "/api/message?fail=1"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, target, nil))
	}

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/message", "200")); got != 2 {
		t.Fatalf("expected 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/message", "503")); got != 1 {
		t.Fatalf("expected 1 failed request, got %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.Intent("record_transaction", "rule")
	m.Intent("record_transaction", "rule")
	m.TransactionRecorded("A", "consumed")
	m.LedgerCleared()
	m.EventPublished("ledger.cleared", nil)
	m.EventPublished("ledger.cleared", errors.New("down"))
	m.EventExported("transaction.recorded", nil)
	m.OracleLatency(120 * time.Millisecond)
	m.RateLimited()
	m.SuspiciousRequest()
	m.SuspiciousRequest()

	if got := testutil.ToFloat64(m.intentsTotal.WithLabelValues("record_transaction", "rule")); got != 2 {
		t.Fatalf("intents = %v", got)
	}
	if got := testutil.ToFloat64(m.clearsTotal); got != 1 {
		t.Fatalf("clears = %v", got)
	}
	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("ledger.cleared", "error")); got != 1 {
		t.Fatalf("failed events = %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimitedTotal); got != 1 {
		t.Fatalf("rate limited = %v", got)
	}
	if got := testutil.ToFloat64(m.suspiciousTotal); got != 2 {
		t.Fatalf("suspicious = %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.TransactionRecorded("B", "received")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tally_transactions_recorded_total{entity="B",kind="received"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Intent("help", "rule")
	m.TransactionRecorded("A", "consumed")
	m.LedgerCleared()
	m.EventPublished("x", nil)
	m.OracleLatency(time.Second)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	m.WrapHandler("/", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
