package daemon

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"parley/internal/config"
)

// ownerLimiter hands out one token bucket per owner.
type ownerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newOwnerLimiter(cfg config.RateLimit) *ownerLimiter {
	rps := rate.Limit(cfg.RequestsPerSecond)
	if rps <= 0 {
		rps = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ownerLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *ownerLimiter) allow(ownerID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[ownerID]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ownerID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// rateLimitMiddleware throttles per authenticated owner. Rejections use the
// rate_limit error kind so clients show the same messaging as an upstream
// 429.
func (s *apiServer) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFromContext(r.Context())
		if owner != "" && !s.limiter.allow(owner) {
			s.writeErrorKind(w, http.StatusTooManyRequests, "rate_limit", "too many requests, slow down")
			return
		}
		next(w, r)
	}
}
