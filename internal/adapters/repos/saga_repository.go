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

const sagaStateTable = "saga_state"

type SagaStateRepository struct {
	conn *sqlx.DB
}

func NewSagaStateRepository(db *sqlx.DB) *SagaStateRepository {
	return &SagaStateRepository{
		conn: db,
	}
}

func (r *SagaStateRepository) InsertInTx(ctx context.Context, tx *sqlx.Tx, state *domain.SagaState) error {
	payloadJSON, err := json.Marshal(state.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal saga payload: %w", err)
	}

	query, args, err := psql.Insert(sagaStateTable).
		Columns("id", "tenant_id", "saga_type", "status", "current_step", "payload", "created_at", "updated_at").
		Values(state.ID, state.TenantID, state.SagaType, state.Status, state.CurrentStep, payloadJSON, state.CreatedAt, state.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert saga state: %w", err)
	}

	return nil
}

func (r *SagaStateRepository) UpdateStatusInTx(ctx context.Context, tx *sqlx.Tx, sagaID uuid.UUID, status domain.SagaStatus, step string, sagaErr *string, updatedAt time.Time) error {
	var truncated *string
	if sagaErr != nil {
		msg := domain.TruncateError(*sagaErr)
		truncated = &msg
	}

	query, args, err := psql.Update(sagaStateTable).
		Set("status", status).
		Set("current_step", step).
		Set("error", truncated).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": sagaID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update saga state: %w", err)
	}

	return nil
}
