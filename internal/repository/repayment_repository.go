package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

type repaymentRepository struct {
	db sqlx.ExtContext
}

func NewRepaymentRepository(db sqlx.ExtContext) RepaymentRepository {
	return &repaymentRepository{db: db}
}

func (r *repaymentRepository) Create(ctx context.Context, repayment *domain.Repayment) error {
	query := `
		INSERT INTO cash_advance_repayments (id, advance_id, amount, repayment_date, payment_method, notes,
			created_by, deduction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		repayment.ID,
		repayment.AdvanceID,
		repayment.Amount,
		repayment.RepaymentDate.Format(utils.DateLayout),
		repayment.PaymentMethod,
		repayment.Notes,
		repayment.CreatedBy,
		repayment.DeductionID,
		repayment.CreatedAt,
	)

	return err
}

func (r *repaymentRepository) ListByAdvanceID(ctx context.Context, advanceID string) ([]*domain.Repayment, error) {
	query := `
		SELECT id, advance_id, amount, repayment_date, payment_method, notes, created_by, deduction_id, created_at
		FROM cash_advance_repayments
		WHERE advance_id = $1
		ORDER BY repayment_date ASC, seq ASC
	`

	repayments := []*domain.Repayment{}
	if err := sqlx.SelectContext(ctx, r.db, &repayments, query, advanceID); err != nil {
		return nil, err
	}

	return repayments, nil
}

func (r *repaymentRepository) ExistsForDeduction(ctx context.Context, deductionID string, repaymentDate time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM cash_advance_repayments
			WHERE deduction_id = $1 AND repayment_date = $2
		)
	`

	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, deductionID, repaymentDate.Format(utils.DateLayout)); err != nil {
		return false, err
	}

	return exists, nil
}
