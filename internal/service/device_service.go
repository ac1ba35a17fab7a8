package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/ports"
)

type (
	// ListResult carries one page of devices with the pagination metadata the
	// delivery layer echoes back.
	ListResult struct {
		Devices []domain.Device
		Total   int
	}

	ProjectedListResult struct {
		Devices []domain.ProjectedDevice
		Total   int
	}

	// DeviceService is the command-side application service. Every mutation
	// couples the aggregate write and the outbox append in one transaction.
	DeviceService interface {
		Create(ctx context.Context, rc domain.RequestContext, macAddress string) (*domain.Device, error)
		Get(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID) (*domain.Device, error)
		List(ctx context.Context, rc domain.RequestContext, limit, offset int) (*ListResult, error)
		ListProjected(ctx context.Context, rc domain.RequestContext, limit, offset int) (*ProjectedListResult, error)
		Retire(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID, reason string, expectedVersion *int) (*domain.Device, error)
		Activate(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID, reason string, expectedVersion *int) (*domain.Device, error)
	}

	deviceService struct {
		txRunner   ports.TxRunner
		deviceRepo ports.DeviceRepository
		outboxRepo ports.OutboxRepository
		readRepo   ports.DeviceReadModelRepository
		logger     infrastructure.Logger
	}
)

func NewDeviceService(
	txRunner ports.TxRunner,
	deviceRepo ports.DeviceRepository,
	outboxRepo ports.OutboxRepository,
	readRepo ports.DeviceReadModelRepository,
	logger infrastructure.Logger,
) DeviceService {
	return &deviceService{
		txRunner:   txRunner,
		deviceRepo: deviceRepo,
		outboxRepo: outboxRepo,
		readRepo:   readRepo,
		logger:     logger.Component("device_service"),
	}
}

func (s *deviceService) Create(ctx context.Context, rc domain.RequestContext, macAddress string) (*domain.Device, error) {
	device, err := domain.NewDevice(rc.TenantID, macAddress, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithinTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.deviceRepo.ExistsByMAC(ctx, tx, rc.TenantID, device.MACAddress)
		if err != nil {
			return err
		}
		if exists {
			return domain.NewValidationError("MAC address already exists for tenant")
		}

		if err := s.deviceRepo.AddInTx(ctx, tx, device); err != nil {
			return err
		}

		return s.outboxRepo.AppendInTx(ctx, tx,
			domain.NewDeviceCreatedEvent(rc.TenantID, device.ID, rc.UserID, time.Now().UTC()))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("device_id", device.ID.String()).
		Str("tenant_id", rc.TenantID.String()).
		Msg("device created")

	return &device, nil
}

func (s *deviceService) Get(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID) (*domain.Device, error) {
	var device *domain.Device

	err := s.txRunner.WithinTx(ctx, func(tx *sqlx.Tx) error {
		found, err := s.deviceRepo.GetByID(ctx, tx, rc.TenantID, deviceID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrDeviceNotFound
		}
		device = found

		return nil
	})
	if err != nil {
		return nil, err
	}

	return device, nil
}

func (s *deviceService) List(ctx context.Context, rc domain.RequestContext, limit, offset int) (*ListResult, error) {
	total, err := s.deviceRepo.CountByTenant(ctx, rc.TenantID)
	if err != nil {
		return nil, err
	}

	devices, err := s.deviceRepo.ListByTenant(ctx, rc.TenantID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ListResult{Devices: devices, Total: total}, nil
}

func (s *deviceService) ListProjected(ctx context.Context, rc domain.RequestContext, limit, offset int) (*ProjectedListResult, error) {
	devices, total, err := s.readRepo.ListByTenant(ctx, rc.TenantID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ProjectedListResult{Devices: devices, Total: total}, nil
}

func (s *deviceService) Retire(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID, reason string, expectedVersion *int) (*domain.Device, error) {
	return s.changeStatus(ctx, rc, deviceID, reason, expectedVersion,
		func(device domain.Device, now time.Time) (domain.Device, error) {
			return device.Retire(reason, now)
		},
		func(tenantID, userID uuid.UUID, now time.Time) *domain.OutboxEvent {
			return domain.NewDeviceRetiredEvent(tenantID, deviceID, userID, reason, now)
		})
}

func (s *deviceService) Activate(ctx context.Context, rc domain.RequestContext, deviceID uuid.UUID, reason string, expectedVersion *int) (*domain.Device, error) {
	return s.changeStatus(ctx, rc, deviceID, reason, expectedVersion,
		func(device domain.Device, now time.Time) (domain.Device, error) {
			return device.Activate(reason, now)
		},
		func(tenantID, userID uuid.UUID, now time.Time) *domain.OutboxEvent {
			return domain.NewDeviceActivatedEvent(tenantID, deviceID, userID, reason, now)
		})
}

// changeStatus composes get, in-memory transition, conditional update and
// outbox append inside one transaction. When the conditional update touches
// no rows, a re-read disambiguates conflict from not-found. A nil expected
// version means the caller (the system identity used by saga compensation)
// accepts the current version.
func (s *deviceService) changeStatus(
	ctx context.Context,
	rc domain.RequestContext,
	deviceID uuid.UUID,
	reason string,
	expectedVersion *int,
	transition func(domain.Device, time.Time) (domain.Device, error),
	newEvent func(tenantID, userID uuid.UUID, now time.Time) *domain.OutboxEvent,
) (*domain.Device, error) {
	var result domain.Device

	err := s.txRunner.WithinTx(ctx, func(tx *sqlx.Tx) error {
		device, err := s.deviceRepo.GetByID(ctx, tx, rc.TenantID, deviceID)
		if err != nil {
			return err
		}
		if device == nil {
			return domain.ErrDeviceNotFound
		}

		version := device.Version
		if expectedVersion != nil {
			version = *expectedVersion
		}

		mutated, err := transition(*device, time.Now().UTC())
		if err != nil {
			return err
		}

		updated, err := s.deviceRepo.UpdateInTx(ctx, tx, mutated, version)
		if err != nil {
			return err
		}
		if !updated {
			stillThere, err := s.deviceRepo.GetByID(ctx, tx, rc.TenantID, deviceID)
			if err != nil {
				return err
			}
			if stillThere == nil {
				return domain.ErrDeviceNotFound
			}

			return domain.NewConflictError(deviceID.String(), version)
		}

		mutated.Version = version + 1
		result = mutated

		return s.outboxRepo.AppendInTx(ctx, tx, newEvent(rc.TenantID, rc.UserID, time.Now().UTC()))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("device_id", deviceID.String()).
		Str("status", string(result.Status)).
		Int("version", result.Version).
		Msg("device status changed")

	return &result, nil
}
