package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/sitecrew/advance-engine/internal/domain"
)

// activityRepository appends to activity_logs. The table is owned by the
// administration portal; insert is the only operation exposed.
type activityRepository struct {
	db sqlx.ExtContext
}

func NewActivityRepository(db sqlx.ExtContext) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, record *domain.ActivityRecord) error {
	query := `
		INSERT INTO activity_logs (id, actor, action, advance_id, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Actor,
		record.Action,
		record.AdvanceID,
		record.Summary,
		record.CreatedAt,
	)

	return err
}
