package middleware

import (
	"fmt"
	"net/http"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"

	"github.com/architeacher/svc-device-manager/internal/config"
)

// RateLimiter applies a per-client GCRA rate limit in front of the API.
type RateLimiter struct {
	limiter throttled.HTTPRateLimiterCtx
}

func NewRateLimiter(cfg config.RateLimitingConfig) (*RateLimiter, error) {
	store, err := memstore.NewCtx(cfg.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}

	quota := throttled.RateQuota{
		MaxRate:  throttled.PerSec(cfg.RequestsPerSecond),
		MaxBurst: cfg.BurstSize,
	}

	rateLimiter, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	return &RateLimiter{
		limiter: throttled.HTTPRateLimiterCtx{
			RateLimiter: rateLimiter,
			VaryBy:      &throttled.VaryBy{RemoteAddr: true},
		},
	}, nil
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return rl.limiter.RateLimit(next)
}
