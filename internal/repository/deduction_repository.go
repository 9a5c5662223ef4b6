package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/sitecrew/advance-engine/internal/domain"
)

const deductionColumns = `id, worker_id, deduction_type, amount, is_active, status`

type deductionRepository struct {
	db sqlx.ExtContext
}

func NewDeductionRepository(db sqlx.ExtContext) DeductionRepository {
	return &deductionRepository{db: db}
}

func (r *deductionRepository) ListActiveCashAdvance(ctx context.Context) ([]*domain.Deduction, error) {
	query := `SELECT ` + deductionColumns + `
		FROM deductions
		WHERE deduction_type = $1 AND is_active = TRUE AND status = $2
		ORDER BY worker_id, id
	`

	deductions := []*domain.Deduction{}
	err := sqlx.SelectContext(ctx, r.db, &deductions, query, domain.DeductionTypeCashAdvance, domain.DeductionStatusApplied)
	if err != nil {
		return nil, err
	}

	return deductions, nil
}

func (r *deductionRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Deduction, error) {
	query := `SELECT ` + deductionColumns + `
		FROM deductions
		WHERE id = $1
		FOR UPDATE
	`

	var deduction domain.Deduction
	if err := sqlx.GetContext(ctx, r.db, &deduction, query, id); err != nil {
		return nil, err
	}

	return &deduction, nil
}

func (r *deductionRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE deductions
		SET is_active = FALSE, status = $2
		WHERE id = $1 AND is_active = TRUE
	`

	res, err := r.db.ExecContext(ctx, query, id, domain.DeductionStatusCancelled)
	if err != nil {
		return err
	}

	return expectOneRow(res, "deductions", id)
}
