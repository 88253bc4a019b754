package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/utils"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

// Limiter takes one token for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration)
}

// RateLimit rejects requests from a client IP whose bucket is empty with
// 429 and a Retry-After header. A nil limiter disables it.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r)
			allowed, wait := limiter.Allow(r.Context(), "ip:"+ip)
			if !allowed {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				logger.WarnContext(r.Context(), "Rate limit exceeded", "ip", ip, "path", r.URL.Path)
				response.RateLimit(w, "Demasiadas solicitudes. Intenta más tarde.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
