// Package ratelimit caps requests per client in fixed windows.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultLimit  = 60
	defaultWindow = time.Minute
)

// Config sets the limit per window. Zero values get one minute windows of 60
// requests, and buckets idle for ten windows are swept.
type Config struct {
	Limit  int
	Window time.Duration
}

// Limiter counts requests per key in fixed windows. A background sweeper
// drops idle keys until Stop is called.
type Limiter struct {
	limit   int
	window  time.Duration
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	start time.Time
	last  time.Time
	used  int
}

func NewLimiter(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	l := &Limiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		idleTTL: 10 * cfg.Window,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether one more request from key fits in its window.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.take(key, time.Now())
	return ok
}

// take spends one request of key's window. When the window is used up it
// returns how long until the next one opens.
func (l *Limiter) take(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		l.buckets[key] = &bucket{start: now, last: now, used: 1}
		return true, 0
	}
	b.last = now
	if b.used >= l.limit {
		return false, b.start.Add(l.window).Sub(now)
	}
	b.used++
	return true, 0
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-l.done:
			return
		}
	}
}

// sweep drops keys with no request in the last idleTTL.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.last) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// Clients returns the number of keys currently held.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Middleware answers over-limit requests with 429 and a Retry-After of the
// seconds left in the window. onLimit, when set, writes the body.
func (l *Limiter) Middleware(keyOf func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.take(keyOf(r), time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
