package ports

import (
	"context"

	"github.com/google/uuid"
)

type (
	// TenancyClient resolves user contact details from the tenancy service.
	// An unknown user yields (nil, nil); a refused call yields
	// domain.ErrCircuitOpen.
	TenancyClient interface {
		ResolveUserEmail(ctx context.Context, userID string) (*string, error)
	}

	// EmailSender delivers transactional mail through the email provider.
	EmailSender interface {
		Send(ctx context.Context, to, subject, html string) error
	}

	// DeviceServiceClient calls back into the command service, used by saga
	// compensation to reverse a retirement under the system identity.
	DeviceServiceClient interface {
		Activate(ctx context.Context, tenantID uuid.UUID, deviceID, reason string) error
	}
)
