package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/inkwell-cms/inkwell/pkg/inkwell/authz"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/ratelimit"
)

// timeNow is swappable for tests.
var timeNow = time.Now

// RateLimit applies a throttling rule to every request passing through. The
// subject is the resolved actor when the gate ran earlier in the chain,
// otherwise the client IP. Every response carries the X-RateLimit-* headers.
func RateLimit(limiter *ratelimit.Limiter, rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			subject := subjectFor(r)
			res := limiter.Allow(r.Context(), rule, subject, r.Method, r.URL.Path)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := int64(res.ResetAt.Sub(timeNow()).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, Response{
					Success: false,
					Code:    "RATE_LIMITED",
					Message: "too many requests",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func subjectFor(r *http.Request) string {
	if actor := authz.ActorFromContext(r.Context()); actor != nil && actor.UID != "" {
		return actor.UID
	}
	return "ip:" + clientIP(r)
}

// clientIP extracts the originating address, preferring the first
// X-Forwarded-For hop set by the host's proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
