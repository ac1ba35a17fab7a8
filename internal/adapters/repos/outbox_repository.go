package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/domain"
)

const outboxTable = "outbox"

type (
	OutboxRepository struct {
		conn *sqlx.DB
	}

	outboxRow struct {
		ID          string     `db:"id"`
		TenantID    string     `db:"tenant_id"`
		EventType   string     `db:"event_type"`
		Payload     []byte     `db:"payload"`
		CreatedAt   time.Time  `db:"created_at"`
		ProcessedAt *time.Time `db:"processed_at"`
		Attempts    int        `db:"attempts"`
		LastError   *string    `db:"last_error"`
	}
)

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{
		conn: db,
	}
}

// AppendInTx inserts an outbox event inside the caller's transaction so the
// event becomes visible iff the aggregate mutation commits.
func (r *OutboxRepository) AppendInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query, args, err := psql.Insert(outboxTable).
		Columns("id", "tenant_id", "event_type", "payload", "created_at", "attempts").
		Values(event.ID, event.TenantID, event.EventType, payloadJSON, event.CreatedAt, event.Attempts).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}

	return nil
}

// ClaimBatchInTx locks up to limit unprocessed rows in created_at order.
// SKIP LOCKED keeps concurrent pollers from blocking on or double-claiming
// each other's rows, so horizontal scaling needs no code change.
func (r *OutboxRepository) ClaimBatchInTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*domain.OutboxEvent, error) {
	query, args, err := psql.Select("id", "tenant_id", "event_type", "payload", "created_at", "processed_at", "attempts", "last_error").
		From(outboxTable).
		Where(sq.Eq{"processed_at": nil}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build claim query: %w", err)
	}

	var rows []outboxRow
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}

	events := make([]*domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		event, err := convertRowToOutboxEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

func (r *OutboxRepository) MarkProcessedInTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, processedAt time.Time) error {
	query, args, err := psql.Update(outboxTable).
		Set("processed_at", processedAt).
		Where(sq.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("outbox event not found: %s", eventID)
	}

	return nil
}

func (r *OutboxRepository) RecordFailureInTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, attempts int, lastError string) error {
	query, args, err := psql.Update(outboxTable).
		Set("attempts", attempts).
		Set("last_error", domain.TruncateError(lastError)).
		Where(sq.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record event failure: %w", err)
	}

	return nil
}

// MarkDeadLetteredInTx parks a row that exhausted its retry budget. A set
// processed_at with a non-null last_error is the dead-letter marker.
func (r *OutboxRepository) MarkDeadLetteredInTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, attempts int, lastError string, processedAt time.Time) error {
	query, args, err := psql.Update(outboxTable).
		Set("attempts", attempts).
		Set("last_error", domain.TruncateError(lastError)).
		Set("processed_at", processedAt).
		Where(sq.Eq{"id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to dead-letter event: %w", err)
	}

	return nil
}

func convertRowToOutboxEvent(row outboxRow) (*domain.OutboxEvent, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}

	tenantID, err := uuid.Parse(row.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant_id: %w", err)
	}

	var payload domain.DeviceEventPayload
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &domain.OutboxEvent{
		ID:          id,
		TenantID:    tenantID,
		EventType:   domain.EventType(row.EventType),
		Payload:     payload,
		CreatedAt:   row.CreatedAt,
		ProcessedAt: row.ProcessedAt,
		Attempts:    row.Attempts,
		LastError:   row.LastError,
	}, nil
}
