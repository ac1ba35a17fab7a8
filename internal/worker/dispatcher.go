package worker

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/ports"
	"github.com/architeacher/svc-device-manager/internal/worker/sagas"
)

// Dispatcher fans one claimed event out to the read-model projector and the
// side-effect handler for its type. Projection always runs first so the read
// model reflects the authoritative row even when the side effect fails.
type Dispatcher struct {
	projector   *Projector
	retirement  *sagas.RetirementSaga
	tenancy     ports.TenancyClient
	emailSender ports.EmailSender
	logger      infrastructure.Logger
}

func NewDispatcher(
	projector *Projector,
	retirement *sagas.RetirementSaga,
	tenancy ports.TenancyClient,
	emailSender ports.EmailSender,
	logger infrastructure.Logger,
) *Dispatcher {
	return &Dispatcher{
		projector:   projector,
		retirement:  retirement,
		tenancy:     tenancy,
		emailSender: emailSender,
		logger:      logger.Component("dispatcher"),
	}
}

// Dispatch processes one event inside the poller's claim transaction. A nil
// return means the event is done and its row can be marked processed.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	if !event.EventType.Known() {
		d.logger.Warn().
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.EventType)).
			Msg("ignoring unknown event type")

		return nil
	}

	if err := d.projector.Project(ctx, tx, event); err != nil {
		return fmt.Errorf("projection failed: %w", err)
	}

	if event.Payload.UserID == "" {
		return nil
	}

	switch event.EventType {
	case domain.EventDeviceRetired:
		return d.retirement.Run(ctx, tx, event)
	case domain.EventDeviceActivated:
		return d.sendNotification(ctx, event, "Device activated", "Your device is active.")
	case domain.EventDeviceCreated:
		return d.sendNotification(ctx, event, "Device registered", "Your device has been registered.")
	default:
		return nil
	}
}

func (d *Dispatcher) sendNotification(ctx context.Context, event *domain.OutboxEvent, subject, body string) error {
	email, err := d.tenancy.ResolveUserEmail(ctx, event.Payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve user email: %w", err)
	}
	if email == nil {
		d.logger.Debug().
			Str("event_id", event.ID.String()).
			Str("user_id", event.Payload.UserID).
			Msg("no email on record, skipping notification")

		return nil
	}

	if err := d.emailSender.Send(ctx, *email, subject, body); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}
