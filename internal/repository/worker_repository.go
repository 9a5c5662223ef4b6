package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/sitecrew/advance-engine/internal/domain"
)

type workerRepository struct {
	db sqlx.ExtContext
}

func NewWorkerRepository(db sqlx.ExtContext) WorkerRepository {
	return &workerRepository{db: db}
}

func (r *workerRepository) GetByID(ctx context.Context, id string) (*domain.Worker, error) {
	query := `
		SELECT id, name, is_active
		FROM workers
		WHERE id = $1
	`

	var worker domain.Worker
	if err := sqlx.GetContext(ctx, r.db, &worker, query, id); err != nil {
		return nil, err
	}

	return &worker, nil
}
