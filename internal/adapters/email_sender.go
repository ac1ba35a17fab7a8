package adapters

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendEmailSender delivers transactional mail through the Resend API,
// guarded by its own circuit breaker. Any non-2xx response is a failure.
type ResendEmailSender struct {
	client         *resty.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         infrastructure.Logger
	config         config.EmailConfig
	endpoint       string
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewResendEmailSender(
	cfg config.EmailConfig,
	httpCfg config.HTTPClientConfig,
	breakerCfg config.CircuitBreakerConfig,
	logger infrastructure.Logger,
) *ResendEmailSender {
	return &ResendEmailSender{
		client:         newHTTPClient(httpCfg),
		circuitBreaker: newCircuitBreaker("resend", breakerCfg, logger),
		logger:         logger.Component("email_sender"),
		config:         cfg,
		endpoint:       resendEndpoint,
	}
}

func (s *ResendEmailSender) Send(ctx context.Context, to, subject, html string) error {
	_, err := s.circuitBreaker.Execute(func() (any, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			SetAuthToken(s.config.APIKey).
			SetBody(sendEmailRequest{
				From:    s.config.From,
				To:      []string{to},
				Subject: subject,
				HTML:    html,
			}).
			Post(s.endpoint)
		if err != nil {
			return nil, domain.NewTransientExternalError("resend", err)
		}

		if resp.IsError() {
			return nil, domain.NewTransientExternalError("resend",
				fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status()))
		}

		return nil, nil
	})
	if err != nil {
		return mapBreakerError("resend", err)
	}

	s.logger.Info().Str("subject", subject).Msg("email sent")

	return nil
}
