package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey string

const loggerKey ctxKey = "logger"

// LoggerFromContext returns the request-scoped logger, which carries a
// request_id attribute, or slog.Default() outside a request.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withRequestLogging tags each request with an ID, reusing a client-supplied
// one, and logs its completion.
func withRequestLogging(next http.Handler, base *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		log := base.With("request_id", id)
		r = r.WithContext(context.WithValue(r.Context(), loggerKey, log))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,"+RequestIDHeader)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client IP.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst, maxRateLimitedClients)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxRateLimitedClients bounds how many client buckets are tracked at once.
const maxRateLimitedClients = 10_000

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     *expirable.LRU[string, *bucket]
}

type bucket struct {
	tokens float64
	last   time.Time
}

// newRateLimiter expires a bucket once it would have refilled completely, so
// dropping it is indistinguishable from keeping it.
func newRateLimiter(rpm, burst, maxClients int) *rateLimiter {
	refill := time.Duration(float64(burst) / float64(rpm) * float64(time.Minute))
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     expirable.NewLRU[string, *bucket](maxClients, nil, max(time.Minute, refill)),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b.Get(key)
	if !ok {
		l.b.Add(key, &bucket{tokens: l.burst - 1, last: now})
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rpm)
	b.last = now
	// re-adding restarts the expiry clock
	l.b.Add(key, b)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
