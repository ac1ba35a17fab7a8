package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

// TenancyClient resolves user emails from the tenancy service. The lookup is
// soft: a non-200 response or a missing email means "unknown", not an error.
// Transport failures count against the circuit breaker.
type TenancyClient struct {
	client         *resty.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         infrastructure.Logger
	config         config.TenancyConfig
}

type userEmailResponse struct {
	Email string `json:"email"`
}

func NewTenancyClient(
	cfg config.TenancyConfig,
	httpCfg config.HTTPClientConfig,
	breakerCfg config.CircuitBreakerConfig,
	logger infrastructure.Logger,
) *TenancyClient {
	return &TenancyClient{
		client:         newHTTPClient(httpCfg),
		circuitBreaker: newCircuitBreaker("tenancy", breakerCfg, logger),
		logger:         logger.Component("tenancy_client"),
		config:         cfg,
	}
}

func (c *TenancyClient) ResolveUserEmail(ctx context.Context, userID string) (*string, error) {
	result, err := c.circuitBreaker.Execute(func() (any, error) {
		var body userEmailResponse

		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("x-internal-token", c.config.Token).
			SetResult(&body).
			Get(fmt.Sprintf("%s/internal/user-email/%s", c.config.URL, url.PathEscape(userID)))
		if err != nil {
			return nil, fmt.Errorf("tenancy service unreachable: %w", err)
		}

		if resp.StatusCode() != http.StatusOK {
			c.logger.Warn().
				Str("user_id", userID).
				Int("status_code", resp.StatusCode()).
				Msg("user email lookup returned non-200")

			return (*string)(nil), nil
		}

		if body.Email == "" {
			return (*string)(nil), nil
		}

		return &body.Email, nil
	})
	if err != nil {
		return nil, mapBreakerError("tenancy", err)
	}

	return result.(*string), nil
}
