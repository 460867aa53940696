// Package gatewayhttp is the HTTP+realtime gateway: it terminates client
// connections, enforces cross-cutting policy (CORS, security headers,
// rate limiting, request validation, request ids, performance tapping),
// and dispatches to module handlers. No business logic lives here.
package gatewayhttp

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/homepilot/control-plane/internal/httpjson"
	"github.com/homepilot/control-plane/internal/obslog"
	"github.com/homepilot/control-plane/internal/perfmon"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// CORS rejects any origin outside the allow-list with 403. A wildcard is
// honored only when configured explicitly.
func CORS(allowedOrigins []string, log *obslog.Logger) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if !allowAll && !allowed[origin] {
					if log != nil {
						log.LogSecurityEvent(r.Context(), "cors_origin_rejected", map[string]interface{}{
							"origin": origin,
							"path":   r.URL.Path,
						})
					}
					httpjson.Write(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders applies the strict response-header baseline.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// RateLimiter is the per-client-IP token bucket: refill
// maxRequestsPerMinute/60 per second, burst = maxRequestsPerMinute.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
	log      *obslog.Logger
}

// NewRateLimiter builds a limiter for the configured per-minute budget.
func NewRateLimiter(maxRequestsPerMinute int, log *obslog.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   maxRequestsPerMinute,
		log:      log,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin)
		rl.limiters[key] = l
		// Unbounded client maps are a slow leak; reset wholesale past a
		// sane population instead of tracking per-entry age.
		if len(rl.limiters) > 10000 {
			rl.limiters = map[string]*rate.Limiter{key: l}
		}
	}
	return l
}

// Handler enforces the limit and stamps rate-limit headers on every response.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)
		l := rl.limiter(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))

		if !l.Allow() {
			if rl.log != nil {
				rl.log.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
					"client": key,
					"path":   r.URL.Path,
				})
			}
			w.Header().Set("Retry-After", "60")
			httpjson.Write(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateRequest bounds JSON bodies at 1 MiB and requires
// Content-Type: application/json on POST/PUT.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httpjson.Write(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Content-Type must be application/json"})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID echoes an inbound X-Request-ID or generates one, and stores it
// on the context for downstream logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(obslog.WithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the response code for the performance tap.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade still works behind the tap.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := s.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// PerfTap feeds every finished request into the performance monitor.
func PerfTap(monitor *perfmon.Monitor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			monitor.Observe(r.Method+" "+r.URL.Path, time.Since(start), rec.status < 400)
		})
	}
}

// ClientIP resolves the requesting client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
