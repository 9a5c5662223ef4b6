package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sitecrew/advance-engine/internal/domain"
)

const advanceColumns = `id, worker_id, amount, balance, repayment_amount, status, reason, request_date,
		approved_by, approved_at, completed_at, is_archived, created_at, updated_at`

type advanceRepository struct {
	db sqlx.ExtContext
}

func NewAdvanceRepository(db sqlx.ExtContext) AdvanceRepository {
	return &advanceRepository{db: db}
}

func (r *advanceRepository) Create(ctx context.Context, advance *domain.CashAdvance) error {
	query := `
		INSERT INTO cash_advances (id, worker_id, amount, balance, repayment_amount, status, reason, request_date,
			approved_by, approved_at, completed_at, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		advance.ID,
		advance.WorkerID,
		advance.Amount,
		advance.Balance,
		advance.RepaymentAmount,
		advance.Status,
		advance.Reason,
		advance.RequestDate,
		advance.ApprovedBy,
		advance.ApprovedAt,
		advance.CompletedAt,
		advance.IsArchived,
		advance.CreatedAt,
		advance.UpdatedAt,
	)

	return err
}

func (r *advanceRepository) GetByID(ctx context.Context, id string) (*domain.CashAdvance, error) {
	query := `SELECT ` + advanceColumns + `
		FROM cash_advances
		WHERE id = $1 AND is_archived = FALSE
	`

	var advance domain.CashAdvance
	if err := sqlx.GetContext(ctx, r.db, &advance, query, id); err != nil {
		return nil, err
	}

	return &advance, nil
}

func (r *advanceRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.CashAdvance, error) {
	query := `SELECT ` + advanceColumns + `
		FROM cash_advances
		WHERE id = $1 AND is_archived = FALSE
		FOR UPDATE
	`

	var advance domain.CashAdvance
	if err := sqlx.GetContext(ctx, r.db, &advance, query, id); err != nil {
		return nil, err
	}

	return &advance, nil
}

func (r *advanceRepository) Update(ctx context.Context, advance *domain.CashAdvance) error {
	query := `
		UPDATE cash_advances
		SET balance = $2, repayment_amount = $3, status = $4, approved_by = $5, approved_at = $6,
			completed_at = $7, is_archived = $8, updated_at = $9
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		advance.ID,
		advance.Balance,
		advance.RepaymentAmount,
		advance.Status,
		advance.ApprovedBy,
		advance.ApprovedAt,
		advance.CompletedAt,
		advance.IsArchived,
		advance.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return expectOneRow(res, "cash_advances", advance.ID)
}

func (r *advanceRepository) List(ctx context.Context, filter domain.AdvanceFilter) ([]*domain.CashAdvance, int, error) {
	conditions := []string{"is_archived = FALSE"}
	args := []any{}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.WorkerID != "" {
		add("worker_id = $%d", filter.WorkerID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.From != nil {
		add("request_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("request_date <= $%d", *filter.To)
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM cash_advances WHERE ` + where
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s
		FROM cash_advances
		WHERE %s
		ORDER BY request_date DESC, created_at DESC, id
		LIMIT $%d OFFSET $%d`, advanceColumns, where, len(args)+1, len(args)+2)

	advances := []*domain.CashAdvance{}
	if err := sqlx.SelectContext(ctx, r.db, &advances, query, append(args, filter.PageSize, filter.Offset())...); err != nil {
		return nil, 0, err
	}

	return advances, total, nil
}

func (r *advanceRepository) GetOldestOutstandingForUpdate(ctx context.Context, workerID string) (*domain.CashAdvance, error) {
	query := `SELECT ` + advanceColumns + `
		FROM cash_advances
		WHERE worker_id = $1 AND is_archived = FALSE AND status IN ($2, $3) AND balance > 0
		ORDER BY request_date ASC, created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`

	var advance domain.CashAdvance
	err := sqlx.GetContext(ctx, r.db, &advance, query, workerID, domain.AdvanceStatusApproved, domain.AdvanceStatusRepaying)
	if err != nil {
		return nil, err
	}

	return &advance, nil
}

func (r *advanceRepository) SumOutstanding(ctx context.Context, workerID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(balance), 0)
		FROM cash_advances
		WHERE worker_id = $1 AND is_archived = FALSE AND status IN ($2, $3)
	`

	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &total, query, workerID, domain.AdvanceStatusApproved, domain.AdvanceStatusRepaying)
	if err != nil {
		return decimal.Zero, err
	}

	return total, nil
}
