package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/oddmeter/camhub/internal/ratelimit"
)

// Config holds the rate-limit thresholds for each scope. Login is the
// login-endpoint-specific scope required by the attack surface around
// /api/login; GlobalIP and User are checked on every request.
type Config struct {
	GlobalIP ratelimit.LimitConfig `yaml:"global_ip"`
	User     ratelimit.LimitConfig `yaml:"user"`
	Login    ratelimit.LimitConfig `yaml:"login"`
}

type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	config  Config
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, c Config) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: l, config: c}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return strings.Split(r.RemoteAddr, ":")[0]
}

// GlobalLimiter enforces the per-IP limit on every request, then the
// per-user limit for authenticated callers. Redis failures fail closed on
// /api/login (brute-force protection must hold even if Redis is down) and
// fail open everywhere else (availability over rate-limit precision).
func (m *RateLimitMiddleware) GlobalLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ipHash := m.limiter.HashIP(clientIP(r))
		decision, err := m.limiter.CheckRateLimit(r.Context(), fmt.Sprintf("rl:ip:%s", ipHash), m.config.GlobalIP)
		if err != nil {
			if r.URL.Path == "/api/login" {
				log.Printf("ratelimit: redis unavailable on login path, failing closed: %v", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			log.Printf("ratelimit: redis unavailable, failing open: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if ac, ok := GetAuthContext(r.Context()); ok {
			userKey := fmt.Sprintf("rl:user:%d", ac.UserID)
			if uDecision, err := m.limiter.CheckRateLimit(r.Context(), userKey, m.config.User); err == nil && !uDecision.Allowed {
				writeRateLimitHeaders(w, uDecision)
				http.Error(w, "User rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// LoginLimiter enforces the stricter per-IP login threshold, applied only to
// the login route, ahead of credential validation.
func (m *RateLimitMiddleware) LoginLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ipHash := m.limiter.HashIP(clientIP(r))
		decision, err := m.limiter.CheckRateLimit(r.Context(), fmt.Sprintf("rl:login:%s", ipHash), m.config.Login)
		if err != nil {
			log.Printf("ratelimit: redis unavailable on login limiter, failing closed: %v", err)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		if !decision.Allowed {
			writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}
