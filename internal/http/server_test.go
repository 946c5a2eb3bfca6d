package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/dispatch"
	"tally/internal/intent"
	"tally/internal/ledger"
	"tally/internal/ledger/memory"
	"tally/internal/log"
	"tally/internal/metrics"
)

var entities = core.NewEntitySet(core.DefaultEntities)

// failingStore rejects every call with a storage failure.
type failingStore struct{}

func (failingStore) Append(context.Context, string, string, core.Kind, core.Amount, string) (core.Transaction, error) {
	return core.Transaction{}, core.StorageError("append", errors.New("disk full"))
}
func (failingStore) Scan(context.Context, string, core.Filter) ([]core.Transaction, error) {
	return nil, core.StorageError("scan", errors.New("disk full"))
}
func (failingStore) Clear(context.Context, string) (int, error) {
	return 0, core.StorageError("clear", errors.New("disk full"))
}
func (failingStore) Get(context.Context, string, string) (core.Transaction, error) {
	return core.Transaction{}, ledger.ErrNotFound
}
func (failingStore) Track(context.Context, string, string) (bool, error) {
	return false, core.StorageError("track", errors.New("disk full"))
}
func (failingStore) Untrack(context.Context, string, string) (bool, error) {
	return false, core.StorageError("untrack", errors.New("disk full"))
}
func (failingStore) Tracked(context.Context, string) ([]string, error) {
	return nil, core.StorageError("tracked", errors.New("disk full"))
}
func (failingStore) ClearTracked(context.Context, string) (int, error) {
	return 0, core.StorageError("clear tracked", errors.New("disk full"))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, store ledger.Store, opts Options) *Server {
	t.Helper()
	resolver := intent.NewResolver(entities, nil, intent.WithLogger(log.Discard()))
	d := dispatch.New(resolver, store, dispatch.Config{Entities: entities, Logger: log.Discard()})
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	s := NewServer(":0", d, store, entities, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, target, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, memory.New(entities), Options{})
	if rec := do(t, s, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	down := newTestServer(t, memory.New(entities), Options{Readiness: pinger{err: errors.New("db gone")}})
	if rec := do(t, down, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing ping = %d", rec.Code)
	}
}

func TestMessageRecordsAndAnswers(t *testing.T) {
	s := newTestServer(t, memory.New(entities), Options{})

	rec := do(t, s, http.MethodPost, "/api/message", "alice", `{"text":"A consumed 100 units"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[dispatch.Response](t, rec)
	if resp.Intent != intent.KindRecordTransaction || resp.TransactionID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", rec.Header())
	}

	rec = do(t, s, http.MethodPost, "/api/message", "alice", `{"text":"help","language":"zh"}`)
	resp = decode[dispatch.Response](t, rec)
	if resp.Intent != intent.KindHelp {
		t.Fatalf("expected help, got %+v", resp)
	}
}

func TestMessageRequestErrors(t *testing.T) {
	s := newTestServer(t, memory.New(entities), Options{})
	tests := []struct {
		name   string
		method string
		owner  string
		body   string
		want   int
	}{
		{"missing owner", http.MethodPost, "", `{"text":"help"}`, http.StatusBadRequest},
		{"missing text", http.MethodPost, "alice", `{"language":"en"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "alice", `{"text":`, http.StatusBadRequest},
		{"too long", http.MethodPost, "alice", `{"text":"` + strings.Repeat("a", maxMessageLength+1) + `"}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "alice", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, "/api/message", tt.owner, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestOwnerScoping(t *testing.T) {
	store := memory.New(entities)
	s := newTestServer(t, store, Options{})
	ctx := context.Background()
	if _, err := store.Append(ctx, "alice", "A", core.Consumed, core.Units(10), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, "bob", "B", core.Received, core.Units(5), ""); err != nil {
		t.Fatal(err)
	}

	list := decode[transactionsResponse](t, do(t, s, http.MethodGet, "/api/transactions", "alice", ""))
	if len(list.Transactions) != 1 || list.Transactions[0].Entity != "A" {
		t.Fatalf("alice saw %+v", list.Transactions)
	}

	// Cookie owner works the same as the header.
	req := httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	req.AddCookie(&http.Cookie{Name: OwnerCookie, Value: "bob"})
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	st := decode[statisticsResponse](t, rec)
	if len(st.Statistics) != 1 || st.Statistics[0].Entity != "B" || st.Statistics[0].TotalReceived != 5 {
		t.Fatalf("bob statistics %+v", st.Statistics)
	}

	cleared := decode[clearResponse](t, do(t, s, http.MethodDelete, "/api/transactions", "alice", ""))
	if cleared.Cleared != 1 {
		t.Fatalf("cleared = %d", cleared.Cleared)
	}
	remaining, _ := store.Scan(ctx, "bob", core.Filter{})
	if len(remaining) != 1 {
		t.Fatalf("clearing alice touched bob: %d left", len(remaining))
	}
}

func TestStatisticsAndCompare(t *testing.T) {
	store := memory.New(entities)
	s := newTestServer(t, store, Options{})
	ctx := context.Background()
	store.Append(ctx, "o", "A", core.Consumed, core.Units(100), "")
	store.Append(ctx, "o", "B", core.Consumed, core.Units(40), "")
	store.Append(ctx, "o", "B", core.Received, core.Units(90), "")

	st := decode[statisticsResponse](t, do(t, s, http.MethodGet, "/api/statistics?entity=c", "o", ""))
	if len(st.Statistics) != 1 || st.Statistics[0].Entity != "C" || st.Statistics[0].TransactionCount != 0 {
		t.Fatalf("zero-valued statistics expected for C, got %+v", st.Statistics)
	}

	cmp := decode[compareResponse](t, do(t, s, http.MethodGet, "/api/compare?metric=balance", "o", ""))
	if cmp.Metric != core.MetricBalance || cmp.Most != "B" || cmp.Least != "A" || len(cmp.Ranking) != 2 {
		t.Fatalf("unexpected comparison %+v", cmp)
	}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"unknown entity", "/api/statistics?entity=E", http.StatusUnprocessableEntity},
		{"unknown metric", "/api/compare?metric=weight", http.StatusUnprocessableEntity},
		{"bad kind", "/api/transactions?kind=spent", http.StatusUnprocessableEntity},
		{"bad limit", "/api/transactions?limit=51", http.StatusBadRequest},
		{"bad since", "/api/transactions?since=yesterday", http.StatusBadRequest},
		{"unknown entity filter", "/api/transactions?entity=E", http.StatusUnprocessableEntity},
		{"bad statistics since", "/api/statistics?since=last-week", http.StatusBadRequest},
		{"inverted statistics range", "/api/statistics?since=2025-02-01&until=2025-01-01", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodGet, tt.target, "o", ""); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestStatisticsTimeRange(t *testing.T) {
	stamps := []time.Time{
		time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC),
	}
	i := 0
	store := memory.New(entities).WithClock(func() time.Time {
		ts := stamps[i]
		i++
		return ts
	})
	s := newTestServer(t, store, Options{})
	ctx := context.Background()
	store.Append(ctx, "o", "A", core.Consumed, core.Units(3), "")
	store.Append(ctx, "o", "A", core.Consumed, core.Units(4), "")

	tests := []struct {
		query    string
		consumed float64
		count    int
	}{
		{"", 7, 2},
		{"?since=2025-02-01", 4, 1},
		{"?until=2025-01-10", 3, 1},
		{"?entity=a&since=2025-01-01T00:00:00Z&until=2025-01-31", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/statistics"+tt.query, "o", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
			st := decode[statisticsResponse](t, rec)
			if len(st.Statistics) != 1 || st.Statistics[0].TotalConsumed != tt.consumed || st.Statistics[0].TransactionCount != tt.count {
				t.Fatalf("unexpected statistics %+v", st.Statistics)
			}
		})
	}
}

func TestEntitiesEndpoint(t *testing.T) {
	store := memory.New(entities)
	s := newTestServer(t, store, Options{})

	got := decode[entitiesResponse](t, do(t, s, http.MethodGet, "/api/entities", "o", ""))
	if len(got.Configured) != len(core.DefaultEntities) || got.Tracked == nil || len(got.Tracked) != 0 || got.Changed != nil {
		t.Fatalf("unexpected initial entities %+v", got)
	}

	got = decode[entitiesResponse](t, do(t, s, http.MethodPost, "/api/entities", "o", `{"entity":"c"}`))
	if got.Changed == nil || !*got.Changed || len(got.Tracked) != 1 || got.Tracked[0] != "C" {
		t.Fatalf("unexpected track response %+v", got)
	}
	got = decode[entitiesResponse](t, do(t, s, http.MethodPost, "/api/entities", "o", `{"entity":"C"}`))
	if got.Changed == nil || *got.Changed {
		t.Fatalf("repeat track must report no change: %+v", got)
	}
	if other := decode[entitiesResponse](t, do(t, s, http.MethodGet, "/api/entities", "p", "")); len(other.Tracked) != 0 {
		t.Fatalf("owner p sees %v", other.Tracked)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown entity", http.MethodPost, "/api/entities", `{"entity":"E"}`, http.StatusUnprocessableEntity},
		{"missing entity", http.MethodPost, "/api/entities", `{}`, http.StatusBadRequest},
		{"untrack without entity", http.MethodDelete, "/api/entities", "", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/entities", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, tt.method, tt.target, "o", tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	store.Append(context.Background(), "o", "C", core.Consumed, core.Units(1), "")
	cleared := decode[clearResponse](t, do(t, s, http.MethodDelete, "/api/transactions", "o", ""))
	if cleared.Cleared != 1 || cleared.ClearedTracked != nil {
		t.Fatalf("plain clear must keep tracked entities: %+v", cleared)
	}
	got = decode[entitiesResponse](t, do(t, s, http.MethodDelete, "/api/entities?entity=C", "o", ""))
	if got.Changed == nil || !*got.Changed || len(got.Tracked) != 0 {
		t.Fatalf("unexpected untrack response %+v", got)
	}

	do(t, s, http.MethodPost, "/api/entities", "o", `{"entity":"A"}`)
	cleared = decode[clearResponse](t, do(t, s, http.MethodDelete, "/api/transactions?include_tracked=true", "o", ""))
	if cleared.ClearedTracked == nil || *cleared.ClearedTracked != 1 {
		t.Fatalf("expected tracked entities cleared: %+v", cleared)
	}
	if rec := do(t, s, http.MethodDelete, "/api/transactions?include_tracked=maybe", "o", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad include_tracked = %d", rec.Code)
	}
}

func TestTransactionsFilterAndLimit(t *testing.T) {
	store := memory.New(entities)
	s := newTestServer(t, store, Options{})
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		store.Append(ctx, "o", "A", core.Consumed, core.Units(int64(i)), "")
	}
	store.Append(ctx, "o", "B", core.Received, core.Units(9), "")

	list := decode[transactionsResponse](t, do(t, s, http.MethodGet, "/api/transactions?entity=a&kind=consumed&limit=2", "o", ""))
	if len(list.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(list.Transactions))
	}
	if list.Transactions[0].Amount != 5 || list.Transactions[1].Amount != 4 {
		t.Fatalf("expected newest first, got %+v", list.Transactions)
	}
}

func TestStorageFailureMapsTo503(t *testing.T) {
	s := newTestServer(t, failingStore{}, Options{})
	for _, tt := range []struct{ method, target, body string }{
		{http.MethodPost, "/api/message", `{"text":"A consumed 5"}`},
		{http.MethodGet, "/api/transactions", ""},
		{http.MethodDelete, "/api/transactions", ""},
		{http.MethodGet, "/api/statistics", ""},
		{http.MethodGet, "/api/entities", ""},
		{http.MethodPost, "/api/entities", `{"entity":"A"}`},
	} {
		rec := do(t, s, tt.method, tt.target, "o", tt.body)
		if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
			t.Fatalf("%s %s = %d, want 503 with Retry-After", tt.method, tt.target, rec.Code)
		}
	}
}

func TestRateLimitAndMetrics(t *testing.T) {
	m := metrics.New()
	s := newTestServer(t, memory.New(entities), Options{RateLimitPerMinute: 2, Metrics: m})

	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodGet, "/api/statistics", "o", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec := do(t, s, http.MethodGet, "/api/statistics", "o", "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}

	// Health checks are not rate limited.
	if rec := do(t, s, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	exposition := do(t, s, http.MethodGet, "/metrics", "", "").Body.String()
	for _, want := range []string{
		`http_requests_total{route="/api/statistics",status="429"} 1`,
		`tally_rate_limited_total 1`,
	} {
		if !strings.Contains(exposition, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}
