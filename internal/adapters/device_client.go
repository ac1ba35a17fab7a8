package adapters

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

// DeviceServiceClient calls the command service's activate endpoint under the
// system identity. The saga's compensation step is its only caller, so the
// call is not breaker-guarded; a failure lands the saga in its failed state.
type DeviceServiceClient struct {
	client *resty.Client
	logger infrastructure.Logger
	config config.DeviceServiceConfig
}

type changeStatusRequest struct {
	Reason string `json:"reason"`
}

func NewDeviceServiceClient(
	cfg config.DeviceServiceConfig,
	httpCfg config.HTTPClientConfig,
	logger infrastructure.Logger,
) *DeviceServiceClient {
	return &DeviceServiceClient{
		client: newHTTPClient(httpCfg),
		logger: logger.Component("device_client"),
		config: cfg,
	}
}

func (c *DeviceServiceClient) Activate(ctx context.Context, tenantID uuid.UUID, deviceID, reason string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"x-user-id":        "system",
			"x-tenant-id":      tenantID.String(),
			"x-internal-token": c.config.Token,
		}).
		SetBody(changeStatusRequest{Reason: reason}).
		Post(fmt.Sprintf("%s/api/v1/devices/%s/activate", c.config.URL, url.PathEscape(deviceID)))
	if err != nil {
		return domain.NewTransientExternalError("device-service", err)
	}

	if resp.IsError() {
		return domain.NewTransientExternalError("device-service",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status()))
	}

	return nil
}
