package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/architeacher/svc-device-manager/internal/domain"
)

const devicesTable = "devices"

// pq error code for unique_violation.
const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type (
	DeviceRepository struct {
		conn *sqlx.DB
	}

	deviceRow struct {
		ID         string    `db:"id"`
		TenantID   string    `db:"tenant_id"`
		MACAddress string    `db:"mac_address"`
		Status     string    `db:"status"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
		Version    int       `db:"version"`
	}
)

func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{
		conn: db,
	}
}

func (r *DeviceRepository) ExistsByMAC(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, macAddress string) (bool, error) {
	query, args, err := psql.Select("id").
		From(devicesTable).
		Where(sq.Eq{"tenant_id": tenantID, "mac_address": macAddress}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build select query: %w", err)
	}

	var id string
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("failed to check MAC existence: %w", err)
	}

	return true, nil
}

func (r *DeviceRepository) AddInTx(ctx context.Context, tx *sqlx.Tx, device domain.Device) error {
	query, args, err := psql.Insert(devicesTable).
		Columns("id", "tenant_id", "mac_address", "status", "created_at", "updated_at", "version").
		Values(device.ID, device.TenantID, device.MACAddress, device.Status, device.CreatedAt, device.UpdatedAt, device.Version).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.NewValidationError("MAC address already exists for tenant")
		}

		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

func (r *DeviceRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From(devicesTable).
		Where(sq.Eq{"tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.conn.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}

	return total, nil
}

func (r *DeviceRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Device, error) {
	query, args, err := psql.Select("id", "tenant_id", "mac_address", "status", "created_at", "updated_at", "version").
		From(devicesTable).
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	var rows []deviceRow
	if err := r.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]domain.Device, 0, len(rows))
	for _, row := range rows {
		device, err := convertRowToDevice(row)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, tx *sqlx.Tx, tenantID, deviceID uuid.UUID) (*domain.Device, error) {
	query, args, err := psql.Select("id", "tenant_id", "mac_address", "status", "created_at", "updated_at", "version").
		From(devicesTable).
		Where(sq.Eq{"tenant_id": tenantID, "id": deviceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row deviceRow
	var getErr error
	if tx != nil {
		getErr = tx.GetContext(ctx, &row, query, args...)
	} else {
		getErr = r.conn.GetContext(ctx, &row, query, args...)
	}
	if getErr != nil {
		if errors.Is(getErr, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get device: %w", getErr)
	}

	device, err := convertRowToDevice(row)
	if err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *DeviceRepository) UpdateInTx(ctx context.Context, tx *sqlx.Tx, device domain.Device, expectedVersion int) (bool, error) {
	query, args, err := psql.Update(devicesTable).
		Set("status", device.Status).
		Set("mac_address", device.MACAddress).
		Set("updated_at", device.UpdatedAt).
		Set("version", expectedVersion+1).
		Where(sq.Eq{
			"tenant_id": device.TenantID,
			"id":        device.ID,
			"version":   expectedVersion,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func convertRowToDevice(row deviceRow) (domain.Device, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return domain.Device{}, fmt.Errorf("failed to parse id: %w", err)
	}

	tenantID, err := uuid.Parse(row.TenantID)
	if err != nil {
		return domain.Device{}, fmt.Errorf("failed to parse tenant_id: %w", err)
	}

	return domain.Device{
		ID:         id,
		TenantID:   tenantID,
		MACAddress: row.MACAddress,
		Status:     domain.DeviceStatus(row.Status),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		Version:    row.Version,
	}, nil
}
