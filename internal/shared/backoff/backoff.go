package backoff

import (
	"math/rand"
	"time"

	"github.com/architeacher/svc-device-manager/internal/config"
)

type (
	// Strategy defines the methodology for backing off after a delivery
	// failure.
	Strategy interface {
		// Backoff returns the amount of time to wait before the next retry given
		// the number of consecutive failures.
		Backoff(retries int) time.Duration
	}

	// FullJitter implements exponential backoff with full jitter: a uniform
	// draw from [0, min(base*2^retries, max)).
	FullJitter struct {
		// config contains all options to configure the backoff algorithm.
		config config.RetryConfig
	}
)

func NewFullJitterStrategy(cfg config.RetryConfig) FullJitter {
	return FullJitter{
		config: cfg,
	}
}

// Backoff calculates the backoff duration for the given retry count.
func (fj FullJitter) Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}

	ceiling, maxCeiling := float64(fj.config.BaseDelay), float64(fj.config.MaxDelay)
	for ceiling < maxCeiling && retries > 0 {
		ceiling *= 2
		retries--
	}

	if ceiling > maxCeiling {
		ceiling = maxCeiling
	}

	return time.Duration(rand.Float64() * ceiling)
}
