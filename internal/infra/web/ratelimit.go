package web

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	rds "batch-transcription-service/internal/infra/redis"
)

// RateLimit caps batch submissions per caller per minute through the shared
// redis counter. On redis errors requests are allowed through (fail open).
type RateLimit struct {
	limiter *rds.RateLimiter
	limit   int
	log     zerolog.Logger
}

func NewRateLimit(limiter *rds.RateLimiter, limit int, log zerolog.Logger) *RateLimit {
	return &RateLimit{limiter: limiter, limit: limit, log: log.With().Str("component", "ratelimit").Logger()}
}

func (s *Server) limitSubmit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Handler(next)
}

func (rl *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerKey(r)
		ok, err := rl.limiter.Allow(r.Context(), rds.SubmitKey(caller), rl.limit, time.Minute)
		if err != nil {
			rl.log.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"code":  http.StatusTooManyRequests,
				"error": "submission rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
