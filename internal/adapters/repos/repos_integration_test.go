//go:build integration

package repos

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/architeacher/svc-device-manager/internal/domain"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("devices"),
		postgrescontainer.WithUsername("devices"),
		postgrescontainer.WithPassword("devices"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db := waitForDatabase(t, connStr)
	t.Cleanup(func() { _ = db.Close() })

	runMigrations(t, db)

	return db
}

func waitForDatabase(t *testing.T, connStr string) *sqlx.DB {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for {
		db, err := sqlx.Connect("postgres", connStr)
		if err == nil {
			return db
		}
		if time.Now().After(deadline) {
			t.Fatalf("database never became ready: %v", err)
		}
		time.Sleep(time.Second)
	}
}

func runMigrations(t *testing.T, db *sqlx.DB) {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)

	path := filepath.Join(filepath.Dir(file), "../../../migrations/0001_init.up.sql")
	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = db.Exec(string(contents))
	require.NoError(t, err)
}

func inTx(t *testing.T, db *sqlx.DB, fn func(tx *sqlx.Tx)) {
	t.Helper()

	tx, err := db.Beginx()
	require.NoError(t, err)

	fn(tx)

	require.NoError(t, tx.Commit())
}

func newStoredDevice(t *testing.T, db *sqlx.DB, repo *DeviceRepository, tenantID uuid.UUID, mac string) domain.Device {
	t.Helper()

	device, err := domain.NewDevice(tenantID, mac, time.Now().UTC())
	require.NoError(t, err)

	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, repo.AddInTx(context.Background(), tx, device))
	})

	return device
}

func TestDeviceRepository(t *testing.T) {
	db := startPostgres(t)
	repo := NewDeviceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	device := newStoredDevice(t, db, repo, tenantID, "AA:BB:CC:DD:EE:01")

	t.Run("duplicate MAC within tenant is rejected", func(t *testing.T) {
		duplicate, err := domain.NewDevice(tenantID, "aa-bb-cc-dd-ee-01", time.Now().UTC())
		require.NoError(t, err)

		tx, err := db.Beginx()
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		addErr := repo.AddInTx(ctx, tx, duplicate)

		var validationErr *domain.ValidationError
		require.ErrorAs(t, addErr, &validationErr)
	})

	t.Run("same MAC under another tenant is allowed", func(t *testing.T) {
		newStoredDevice(t, db, repo, uuid.New(), "AA:BB:CC:DD:EE:01")
	})

	t.Run("ExistsByMAC sees only the owning tenant", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			exists, err := repo.ExistsByMAC(ctx, tx, tenantID, device.MACAddress)
			require.NoError(t, err)
			assert.True(t, exists)

			exists, err = repo.ExistsByMAC(ctx, tx, uuid.New(), device.MACAddress)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	})

	t.Run("update succeeds only against the expected version", func(t *testing.T) {
		retired, err := device.Retire("end of life", time.Now().UTC())
		require.NoError(t, err)

		inTx(t, db, func(tx *sqlx.Tx) {
			updated, err := repo.UpdateInTx(ctx, tx, retired, device.Version)
			require.NoError(t, err)
			assert.True(t, updated)
		})

		// Same expected version again must miss: the row moved to version 2.
		inTx(t, db, func(tx *sqlx.Tx) {
			updated, err := repo.UpdateInTx(ctx, tx, retired, device.Version)
			require.NoError(t, err)
			assert.False(t, updated)
		})

		stored, err := repo.GetByID(ctx, nil, tenantID, device.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, domain.DeviceStatusRetired, stored.Status)
		assert.Equal(t, device.Version+1, stored.Version)
	})

	t.Run("GetByID returns nil for unknown or cross-tenant devices", func(t *testing.T) {
		stored, err := repo.GetByID(ctx, nil, tenantID, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, stored)

		stored, err = repo.GetByID(ctx, nil, uuid.New(), device.ID)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("list pages in creation order", func(t *testing.T) {
		pagedTenant := uuid.New()
		first := newStoredDevice(t, db, repo, pagedTenant, "10:00:00:00:00:01")
		second := newStoredDevice(t, db, repo, pagedTenant, "10:00:00:00:00:02")
		third := newStoredDevice(t, db, repo, pagedTenant, "10:00:00:00:00:03")

		total, err := repo.CountByTenant(ctx, pagedTenant)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		page, err := repo.ListByTenant(ctx, pagedTenant, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, first.ID, page[0].ID)
		assert.Equal(t, second.ID, page[1].ID)

		page, err = repo.ListByTenant(ctx, pagedTenant, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, third.ID, page[0].ID)
	})
}

func TestOutboxRepository(t *testing.T) {
	db := startPostgres(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	base := time.Now().UTC().Truncate(time.Microsecond)
	first := domain.NewDeviceCreatedEvent(tenantID, uuid.New(), userID, base)
	second := domain.NewDeviceRetiredEvent(tenantID, uuid.New(), userID, "broken screen", base.Add(time.Second))
	third := domain.NewDeviceActivatedEvent(tenantID, uuid.New(), userID, "repaired", base.Add(2*time.Second))

	inTx(t, db, func(tx *sqlx.Tx) {
		for _, event := range []*domain.OutboxEvent{second, first, third} {
			require.NoError(t, repo.AppendInTx(ctx, tx, event))
		}
	})

	t.Run("claim returns unprocessed rows oldest first", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			events, err := repo.ClaimBatchInTx(ctx, tx, 10)
			require.NoError(t, err)
			require.Len(t, events, 3)
			assert.Equal(t, first.ID, events[0].ID)
			assert.Equal(t, second.ID, events[1].ID)
			assert.Equal(t, third.ID, events[2].ID)
			assert.Equal(t, "broken screen", events[1].Payload.Reason)
		})
	})

	t.Run("claimed rows are invisible to a concurrent poller", func(t *testing.T) {
		holder, err := db.Beginx()
		require.NoError(t, err)
		defer func() { _ = holder.Rollback() }()

		held, err := repo.ClaimBatchInTx(ctx, holder, 10)
		require.NoError(t, err)
		require.Len(t, held, 3)

		inTx(t, db, func(tx *sqlx.Tx) {
			events, err := repo.ClaimBatchInTx(ctx, tx, 10)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	})

	t.Run("processed rows leave the claimable set", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, repo.MarkProcessedInTx(ctx, tx, first.ID, time.Now().UTC()))
		})

		inTx(t, db, func(tx *sqlx.Tx) {
			events, err := repo.ClaimBatchInTx(ctx, tx, 10)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, second.ID, events[0].ID)
		})
	})

	t.Run("failed rows stay claimable with attempts and last_error", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, repo.RecordFailureInTx(ctx, tx, second.ID, 1, "smtp timeout"))
		})

		inTx(t, db, func(tx *sqlx.Tx) {
			events, err := repo.ClaimBatchInTx(ctx, tx, 10)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, 1, events[0].Attempts)
			require.NotNil(t, events[0].LastError)
			assert.Equal(t, "smtp timeout", *events[0].LastError)
		})
	})

	t.Run("dead-lettered rows keep the final error and leave the claimable set", func(t *testing.T) {
		longError := strings.Repeat("x", domain.MaxErrorLength+100)

		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, repo.MarkDeadLetteredInTx(ctx, tx, second.ID, 5, longError, time.Now().UTC()))
		})

		inTx(t, db, func(tx *sqlx.Tx) {
			events, err := repo.ClaimBatchInTx(ctx, tx, 10)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, third.ID, events[0].ID)
		})

		var row outboxRow
		require.NoError(t, db.Get(&row, "SELECT id, tenant_id, event_type, payload, created_at, processed_at, attempts, last_error FROM outbox WHERE id = $1", second.ID))
		assert.Equal(t, 5, row.Attempts)
		require.NotNil(t, row.ProcessedAt)
		require.NotNil(t, row.LastError)
		assert.Len(t, *row.LastError, domain.MaxErrorLength)
	})

	t.Run("marking an unknown row as processed fails", func(t *testing.T) {
		tx, err := db.Beginx()
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		err = repo.MarkProcessedInTx(ctx, tx, uuid.New(), time.Now().UTC())
		require.Error(t, err)
	})
}

func TestDeviceReadModelRepository(t *testing.T) {
	db := startPostgres(t)
	deviceRepo := NewDeviceRepository(db)
	readRepo := NewDeviceReadModelRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	device := newStoredDevice(t, db, deviceRepo, tenantID, "AA:BB:CC:DD:EE:10")

	ownerEmail := "owner@example.com"
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, readRepo.UpsertFromDeviceInTx(ctx, tx, device.ID, &ownerEmail))
	})

	t.Run("projection mirrors the authoritative row", func(t *testing.T) {
		projected, total, err := readRepo.ListByTenant(ctx, tenantID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, projected, 1)
		assert.Equal(t, device.ID, projected[0].ID)
		assert.Equal(t, device.MACAddress, projected[0].MACAddress)
		assert.Equal(t, domain.DeviceStatusActive, projected[0].Status)
		require.NotNil(t, projected[0].OwnerEmail)
		assert.Equal(t, ownerEmail, *projected[0].OwnerEmail)
	})

	t.Run("re-upsert with no email keeps the resolved one", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, readRepo.UpsertFromDeviceInTx(ctx, tx, device.ID, nil))
		})

		projected, _, err := readRepo.ListByTenant(ctx, tenantID, 10, 0)
		require.NoError(t, err)
		require.Len(t, projected, 1)
		require.NotNil(t, projected[0].OwnerEmail)
		assert.Equal(t, ownerEmail, *projected[0].OwnerEmail)
	})

	t.Run("refresh follows a status transition", func(t *testing.T) {
		retired, err := device.Retire("water damage", time.Now().UTC())
		require.NoError(t, err)

		inTx(t, db, func(tx *sqlx.Tx) {
			updated, err := deviceRepo.UpdateInTx(ctx, tx, retired, device.Version)
			require.NoError(t, err)
			require.True(t, updated)
			require.NoError(t, readRepo.RefreshStatusInTx(ctx, tx, device.ID))
		})

		projected, _, err := readRepo.ListByTenant(ctx, tenantID, 10, 0)
		require.NoError(t, err)
		require.Len(t, projected, 1)
		assert.Equal(t, domain.DeviceStatusRetired, projected[0].Status)
		assert.Equal(t, device.Version+1, projected[0].Version)
		require.NotNil(t, projected[0].OwnerEmail)
		assert.Equal(t, ownerEmail, *projected[0].OwnerEmail)
	})

	t.Run("upsert for an unknown device writes nothing", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, readRepo.UpsertFromDeviceInTx(ctx, tx, uuid.New(), nil))
		})

		_, total, err := readRepo.ListByTenant(ctx, tenantID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestSagaStateRepository(t *testing.T) {
	db := startPostgres(t)
	repo := NewSagaStateRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	state := &domain.SagaState{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		SagaType:    domain.SagaTypeDeviceRetirement,
		Status:      domain.SagaStatusRunning,
		CurrentStep: "notify",
		Payload: domain.DeviceEventPayload{
			DeviceID: uuid.New().String(),
			UserID:   uuid.New().String(),
			Reason:   "broken screen",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, repo.InsertInTx(ctx, tx, state))
	})

	type sagaRow struct {
		Status      string  `db:"status"`
		CurrentStep string  `db:"current_step"`
		Error       *string `db:"error"`
	}

	t.Run("insert persists the running record", func(t *testing.T) {
		var row sagaRow
		require.NoError(t, db.Get(&row, "SELECT status, current_step, error FROM saga_state WHERE id = $1", state.ID))
		assert.Equal(t, string(domain.SagaStatusRunning), row.Status)
		assert.Equal(t, "notify", row.CurrentStep)
		assert.Nil(t, row.Error)
	})

	t.Run("status updates carry the step and a bounded error", func(t *testing.T) {
		longError := "notification failed: " + strings.Repeat("y", domain.MaxErrorLength)

		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, repo.UpdateStatusInTx(ctx, tx, state.ID, domain.SagaStatusCompensating, "reactivate", &longError, time.Now().UTC()))
		})

		var row sagaRow
		require.NoError(t, db.Get(&row, "SELECT status, current_step, error FROM saga_state WHERE id = $1", state.ID))
		assert.Equal(t, string(domain.SagaStatusCompensating), row.Status)
		assert.Equal(t, "reactivate", row.CurrentStep)
		require.NotNil(t, row.Error)
		assert.Len(t, *row.Error, domain.MaxErrorLength)
	})

	t.Run("terminal update clears the error", func(t *testing.T) {
		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, repo.UpdateStatusInTx(ctx, tx, state.ID, domain.SagaStatusCompensated, "reactivate", nil, time.Now().UTC()))
		})

		var row sagaRow
		require.NoError(t, db.Get(&row, "SELECT status, current_step, error FROM saga_state WHERE id = $1", state.ID))
		assert.Equal(t, string(domain.SagaStatusCompensated), row.Status)
		assert.Nil(t, row.Error)
	})
}
