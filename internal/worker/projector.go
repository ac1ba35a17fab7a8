package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/ports"
)

// Projector maintains the denormalized device_read_model from outbox events.
// Every application is an idempotent upsert against the authoritative devices
// row, so replaying an event leaves the projection unchanged.
type Projector struct {
	readRepo ports.DeviceReadModelRepository
	tenancy  ports.TenancyClient
	logger   infrastructure.Logger
}

func NewProjector(
	readRepo ports.DeviceReadModelRepository,
	tenancy ports.TenancyClient,
	logger infrastructure.Logger,
) *Projector {
	return &Projector{
		readRepo: readRepo,
		tenancy:  tenancy,
		logger:   logger.Component("projector"),
	}
}

// Project applies one event to the read model inside the caller's
// transaction. Payloads without a device id are skipped.
func (p *Projector) Project(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	if event.Payload.DeviceID == "" {
		p.logger.Warn().
			Str("event_id", event.ID.String()).
			Msg("event payload has no device id, skipping projection")

		return nil
	}

	deviceID, err := uuid.Parse(event.Payload.DeviceID)
	if err != nil {
		p.logger.Warn().
			Str("event_id", event.ID.String()).
			Str("device_id", event.Payload.DeviceID).
			Msg("event payload has a malformed device id, skipping projection")

		return nil
	}

	switch event.EventType {
	case domain.EventDeviceCreated:
		return p.readRepo.UpsertFromDeviceInTx(ctx, tx, deviceID, p.resolveOwnerEmail(ctx, event))
	case domain.EventDeviceRetired, domain.EventDeviceActivated:
		return p.readRepo.RefreshStatusInTx(ctx, tx, deviceID)
	default:
		return nil
	}
}

// resolveOwnerEmail looks up the owner's email best-effort. A refused or
// failed lookup yields nil; the upsert's COALESCE keeps any value a prior
// projection resolved.
func (p *Projector) resolveOwnerEmail(ctx context.Context, event *domain.OutboxEvent) *string {
	if event.Payload.UserID == "" {
		return nil
	}

	email, err := p.tenancy.ResolveUserEmail(ctx, event.Payload.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrCircuitOpen) {
			p.logger.Debug().
				Str("event_id", event.ID.String()).
				Msg("tenancy breaker open, projecting without owner email")
		} else {
			p.logger.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Msg("owner email lookup failed, projecting without it")
		}

		return nil
	}

	return email
}
