package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	apperrors "avion/internal/errors"
)

// ActivationLimiter throttles license activation attempts per client
// IP. The clock is injected and the per-IP state is resettable, so the
// limiter is testable and never global.
type ActivationLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	enabled  bool
	clock    func() time.Time
	logger   *slog.Logger
}

// LimiterOption configures an ActivationLimiter.
type LimiterOption func(*ActivationLimiter)

// WithLimiterClock injects the time source.
func WithLimiterClock(clock func() time.Time) LimiterOption {
	return func(l *ActivationLimiter) { l.clock = clock }
}

// WithLimiterLogger sets the structured logger.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *ActivationLimiter) {
		if logger != nil {
			l.logger = logger.With(slog.String("component", "activation_limiter"))
		}
	}
}

// NewActivationLimiter creates a per-IP limiter. A disabled limiter
// allows everything.
func NewActivationLimiter(enabled bool, rps float64, burst int, opts ...LimiterOption) *ActivationLimiter {
	l := &ActivationLimiter{
		visitors: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		enabled:  enabled,
		clock:    time.Now,
		logger:   slog.Default().With(slog.String("component", "activation_limiter")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the client may attempt an activation now.
func (l *ActivationLimiter) Allow(ip string) bool {
	if !l.enabled {
		return true
	}
	return l.limiterFor(ip).AllowN(l.clock(), 1)
}

// Reset clears the recorded state for a client IP.
func (l *ActivationLimiter) Reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.visitors, ip)
}

func (l *ActivationLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.visitors[ip]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.visitors[ip] = lim
	}
	return lim
}

// Handler wraps an endpoint with the limiter, rendering 429 on denial.
func (l *ActivationLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			ctx := r.Context()
			l.logger.WarnContext(ctx, "activation attempt rate limited",
				slog.String("remote_addr", ip))
			render.Render(w, r, apperrors.ErrRateLimitExceeded)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware has already folded X-Forwarded-For into
	// RemoteAddr when the request came through a proxy.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
