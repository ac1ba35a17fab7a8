package repos

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
)

const deviceReadModelTable = "device_read_model"

type (
	DeviceReadModelRepository struct {
		conn *sqlx.DB
	}

	projectedDeviceRow struct {
		ID         string    `db:"id"`
		TenantID   string    `db:"tenant_id"`
		MACAddress string    `db:"mac_address"`
		Status     string    `db:"status"`
		OwnerEmail *string   `db:"owner_email"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
		Version    int       `db:"version"`
	}
)

func NewDeviceReadModelRepository(db *sqlx.DB) *DeviceReadModelRepository {
	return &DeviceReadModelRepository{
		conn: db,
	}
}

// UpsertFromDeviceInTx projects the authoritative devices row into the read
// model. Re-applying the same event is a no-op because the source row already
// carries the newer version; COALESCE keeps a previously resolved owner_email
// when the fresh lookup came back empty.
func (r *DeviceReadModelRepository) UpsertFromDeviceInTx(ctx context.Context, tx *sqlx.Tx, deviceID uuid.UUID, ownerEmail *string) error {
	query := `
		INSERT INTO device_read_model (id, tenant_id, mac_address, status, owner_email, created_at, updated_at, version)
		SELECT d.id, d.tenant_id, d.mac_address, d.status, $2, d.created_at, d.updated_at, d.version
		FROM devices d
		WHERE d.id = $1
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			owner_email = COALESCE($2, device_read_model.owner_email),
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version`

	if _, err := tx.ExecContext(ctx, query, deviceID, ownerEmail); err != nil {
		return fmt.Errorf("failed to upsert device read model: %w", err)
	}

	return nil
}

// RefreshStatusInTx re-syncs the projection from the authoritative row after
// a status transition.
func (r *DeviceReadModelRepository) RefreshStatusInTx(ctx context.Context, tx *sqlx.Tx, deviceID uuid.UUID) error {
	query := `
		UPDATE device_read_model
		SET status = d.status, updated_at = d.updated_at, version = d.version
		FROM devices d
		WHERE device_read_model.id = $1
		  AND d.id = $1`

	if _, err := tx.ExecContext(ctx, query, deviceID); err != nil {
		return fmt.Errorf("failed to refresh device read model: %w", err)
	}

	return nil
}

func (r *DeviceReadModelRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.ProjectedDevice, int, error) {
	countQuery, countArgs, err := psql.Select("COUNT(*)").
		From(deviceReadModelTable).
		Where(sq.Eq{"tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.conn.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count projected devices: %w", err)
	}

	query, args, err := psql.Select("id", "tenant_id", "mac_address", "status", "owner_email", "created_at", "updated_at", "version").
		From(deviceReadModelTable).
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	var rows []projectedDeviceRow
	if err := r.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list projected devices: %w", err)
	}

	devices := make([]domain.ProjectedDevice, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse id: %w", err)
		}
		rowTenantID, err := uuid.Parse(row.TenantID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse tenant_id: %w", err)
		}

		devices = append(devices, domain.ProjectedDevice{
			ID:         id,
			TenantID:   rowTenantID,
			MACAddress: row.MACAddress,
			Status:     domain.DeviceStatus(row.Status),
			OwnerEmail: row.OwnerEmail,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
			Version:    row.Version,
		})
	}

	return devices, total, nil
}
