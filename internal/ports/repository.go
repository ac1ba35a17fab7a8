package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
)

type (
	// TxRunner scopes a unit of work to one database transaction. It is
	// implemented by infrastructure.Storage and faked in tests.
	TxRunner interface {
		WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	}

	// DeviceRepository persists the device aggregate under optimistic
	// concurrency.
	DeviceRepository interface {
		ExistsByMAC(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, macAddress string) (bool, error)

		// AddInTx inserts the device; a violated (tenant_id, mac_address)
		// uniqueness constraint surfaces as a domain.ValidationError.
		AddInTx(ctx context.Context, tx *sqlx.Tx, device domain.Device) error

		CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)

		// ListByTenant orders strictly by (created_at ASC, id ASC); the order
		// is a pagination contract.
		ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Device, error)

		GetByID(ctx context.Context, tx *sqlx.Tx, tenantID, deviceID uuid.UUID) (*domain.Device, error)

		// UpdateInTx performs the conditional update, writing version
		// expectedVersion+1. It reports whether exactly one row changed;
		// false means conflict or missing row, disambiguated by re-reading.
		UpdateInTx(ctx context.Context, tx *sqlx.Tx, device domain.Device, expectedVersion int) (bool, error)
	}

	// OutboxRepository owns the transactional outbox rows.
	OutboxRepository interface {
		// AppendInTx inserts the event in the same transaction as the
		// aggregate mutation that produced it.
		AppendInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error

		// ClaimBatchInTx selects up to limit unprocessed rows in created_at
		// order, locking them with FOR UPDATE SKIP LOCKED so concurrent
		// pollers never double-claim.
		ClaimBatchInTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*domain.OutboxEvent, error)

		// MarkProcessedInTx sets processed_at, making the row terminal.
		MarkProcessedInTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, processedAt time.Time) error

		// RecordFailureInTx persists an incremented attempt count and the
		// truncated failure message.
		RecordFailureInTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, attempts int, lastError string) error

		// MarkDeadLetteredInTx sets processed_at while keeping last_error
		// populated, parking the row for manual inspection.
		MarkDeadLetteredInTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, attempts int, lastError string, processedAt time.Time) error
	}

	// SagaStateRepository persists saga runs for observability.
	SagaStateRepository interface {
		InsertInTx(ctx context.Context, tx *sqlx.Tx, state *domain.SagaState) error
		UpdateStatusInTx(ctx context.Context, tx *sqlx.Tx, sagaID uuid.UUID, status domain.SagaStatus, step string, sagaErr *string, updatedAt time.Time) error
	}

	// DeviceReadModelRepository maintains and serves the denormalized
	// projection.
	DeviceReadModelRepository interface {
		// UpsertFromDeviceInTx inserts the read-model row from the
		// authoritative devices row, preserving a previously resolved
		// owner_email when no fresh value is supplied.
		UpsertFromDeviceInTx(ctx context.Context, tx *sqlx.Tx, deviceID uuid.UUID, ownerEmail *string) error

		// RefreshStatusInTx re-syncs status, updated_at and version from the
		// authoritative row.
		RefreshStatusInTx(ctx context.Context, tx *sqlx.Tx, deviceID uuid.UUID) error

		ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ProjectedDevice, int, error)
	}
)
