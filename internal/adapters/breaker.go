package adapters

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

// newCircuitBreaker builds a per-dependency breaker that opens after a run of
// consecutive failures and probes again once the recovery timeout elapses.
// gobreaker tracks elapsed time monotonically, so wall-clock jumps cannot
// close it early.
func newCircuitBreaker(name string, cfg config.CircuitBreakerConfig, logger infrastructure.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// mapBreakerError converts gobreaker refusals into the domain CircuitOpen
// signal. A refused call was never attempted; the poller must not count it
// against the retry budget.
func mapBreakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit %q refused the call: %w", name, domain.ErrCircuitOpen)
	}

	return err
}

// newHTTPClient builds a resty client with the configured total and connect
// timeouts so external calls cannot block shutdown indefinitely.
func newHTTPClient(cfg config.HTTPClientConfig) *resty.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}

	return resty.New().
		SetTimeout(cfg.Timeout).
		SetTransport(transport)
}
