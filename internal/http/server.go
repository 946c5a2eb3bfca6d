package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/dispatch"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/stats"
)

// Pinger reports whether the ledger backend can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server. Zero values get defaults.
type Options struct {
	RateLimitPerMinute int
	DefaultLanguage    string
	// WriteTimeout must leave room for the oracle round trip.
	WriteTimeout time.Duration
	Readiness    Pinger
	Metrics      *metrics.Metrics
	Logger       *log.Logger
}

type Server struct {
	http.Server
	dispatcher      *dispatch.Dispatcher
	store           ledger.Store
	stats           *stats.Aggregator
	entities        core.EntitySet
	defaultLanguage string
	readiness       Pinger
	metrics         *metrics.Metrics
	logger          *log.Logger

	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, d *dispatch.Dispatcher, store ledger.Store, entities core.EntitySet, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Wrap(nil, log.ComponentHTTP)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = dispatch.LanguageEnglish
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
		dispatcher:      d,
		store:           store,
		stats:           d.Aggregator(),
		entities:        entities,
		defaultLanguage: opts.DefaultLanguage,
		readiness:       opts.Readiness,
		metrics:         opts.Metrics,
		logger:          logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			Limit: opts.RateLimitPerMinute,
		}),
		detector: security.NewDetector(),
	}

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)
	api := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.metrics.WrapHandler(route, limited(h)))
	}

	api("/api/message", s.handleMessage)
	api("/api/statistics", s.handleStatistics)
	api("/api/compare", s.handleCompare)
	api("/api/transactions", s.handleTransactions)
	api("/api/entities", s.handleEntities)

	mux.Handle("/healthz", s.metrics.WrapHandler("/healthz", http.HandlerFunc(handleHealth)))
	mux.Handle("/readyz", s.metrics.WrapHandler("/readyz", http.HandlerFunc(s.handleReady)))
	mux.Handle("/metrics", s.metrics.Handler())

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)

	var handler http.Handler = mux
	handler = s.detector.Middleware(func(*http.Request) { s.metrics.SuspiciousRequest() })(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)
	s.Handler = handler

	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
