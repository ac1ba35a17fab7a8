package sagas

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/ports"
)

const (
	stepNotify     = "notify"
	stepReactivate = "reactivate"

	retirementSubject = "Device retired"
)

// RetirementSaga notifies the device owner after a retirement and reverses
// the retirement when the notification definitively cannot be sent. Each run
// writes a saga_state row and moves it forward through
// running -> completed | compensating -> compensated | failed. Statuses are
// never rolled back; terminal rows are the audit trail.
type RetirementSaga struct {
	sagaRepo     ports.SagaStateRepository
	tenancy      ports.TenancyClient
	emailSender  ports.EmailSender
	deviceClient ports.DeviceServiceClient
	metrics      *infrastructure.Metrics
	logger       infrastructure.Logger
}

func NewRetirementSaga(
	sagaRepo ports.SagaStateRepository,
	tenancy ports.TenancyClient,
	emailSender ports.EmailSender,
	deviceClient ports.DeviceServiceClient,
	metrics *infrastructure.Metrics,
	logger infrastructure.Logger,
) *RetirementSaga {
	return &RetirementSaga{
		sagaRepo:     sagaRepo,
		tenancy:      tenancy,
		emailSender:  emailSender,
		deviceClient: deviceClient,
		metrics:      metrics,
		logger:       logger.Component("retirement_saga"),
	}
}

// Run drives one saga execution inside the poller's claim transaction so the
// initial state row commits atomically with the outbox status update. A
// breaker refusal during notify propagates before any compensation, letting
// the poller retry the event without consuming an attempt.
func (s *RetirementSaga) Run(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	now := time.Now().UTC()
	state := &domain.SagaState{
		ID:          uuid.New(),
		TenantID:    event.TenantID,
		SagaType:    domain.SagaTypeDeviceRetirement,
		Status:      domain.SagaStatusRunning,
		CurrentStep: stepNotify,
		Payload:     event.Payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.sagaRepo.InsertInTx(ctx, tx, state); err != nil {
		return fmt.Errorf("failed to start retirement saga: %w", err)
	}

	notifyErr := s.notify(ctx, event)
	if notifyErr == nil {
		if err := s.transition(ctx, tx, state.ID, domain.SagaStatusCompleted, stepNotify, nil); err != nil {
			return err
		}

		return nil
	}

	if errors.Is(notifyErr, domain.ErrCircuitOpen) {
		return notifyErr
	}

	s.logger.Warn().
		Err(notifyErr).
		Str("saga_id", state.ID.String()).
		Str("device_id", event.Payload.DeviceID).
		Msg("notification failed, compensating retirement")

	notifyMsg := domain.TruncateError(notifyErr.Error())
	if err := s.transition(ctx, tx, state.ID, domain.SagaStatusCompensating, stepReactivate, &notifyMsg); err != nil {
		return err
	}

	return s.compensate(ctx, tx, state.ID, event)
}

// notify resolves the owner's email and sends the retirement mail. Device id
// and reason are user-supplied and get escaped before entering the HTML body.
func (s *RetirementSaga) notify(ctx context.Context, event *domain.OutboxEvent) error {
	email, err := s.tenancy.ResolveUserEmail(ctx, event.Payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve user email: %w", err)
	}
	if email == nil {
		return fmt.Errorf("no email found for user %q", event.Payload.UserID)
	}

	body := fmt.Sprintf("<p>Device <code>%s</code> was retired.</p><p>Reason: %s</p>",
		html.EscapeString(event.Payload.DeviceID), html.EscapeString(event.Payload.Reason))

	if err := s.emailSender.Send(ctx, *email, retirementSubject, body); err != nil {
		return fmt.Errorf("failed to send retirement email: %w", err)
	}

	return nil
}

// compensate reverses the retirement under the system identity. Either
// outcome is terminal for the saga and the event, so no error is returned to
// the poller; the saga row carries the result.
func (s *RetirementSaga) compensate(ctx context.Context, tx *sqlx.Tx, sagaID uuid.UUID, event *domain.OutboxEvent) error {
	reason := fmt.Sprintf("Saga compensation: notification failed after retirement (original reason: %s)",
		event.Payload.Reason)

	if err := s.deviceClient.Activate(ctx, event.TenantID, event.Payload.DeviceID, reason); err != nil {
		s.logger.Error().
			Err(err).
			Str("saga_id", sagaID.String()).
			Str("device_id", event.Payload.DeviceID).
			Msg("compensation failed, device remains retired without notification")

		compMsg := domain.TruncateError(err.Error())

		return s.transition(ctx, tx, sagaID, domain.SagaStatusFailed, stepReactivate, &compMsg)
	}

	s.logger.Info().
		Str("saga_id", sagaID.String()).
		Str("device_id", event.Payload.DeviceID).
		Msg("retirement compensated, device reactivated")

	return s.transition(ctx, tx, sagaID, domain.SagaStatusCompensated, stepReactivate, nil)
}

func (s *RetirementSaga) transition(ctx context.Context, tx *sqlx.Tx, sagaID uuid.UUID, status domain.SagaStatus, step string, sagaErr *string) error {
	if err := s.sagaRepo.UpdateStatusInTx(ctx, tx, sagaID, status, step, sagaErr, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update saga status: %w", err)
	}

	if status.Terminal() {
		s.metrics.SagaCompletedTotal.WithLabelValues(domain.SagaTypeDeviceRetirement, string(status)).Inc()
	}

	return nil
}
