package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sitecrew/advance-engine/internal/domain"
)

// SQLStore is the Postgres-backed unit of work.
type SQLStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func newRepos(db sqlx.ExtContext) Repos {
	return Repos{
		Advances:   NewAdvanceRepository(db),
		Repayments: NewRepaymentRepository(db),
		Deductions: NewDeductionRepository(db),
		Workers:    NewWorkerRepository(db),
	}
}

func (s *SQLStore) Repos() Repos {
	return newRepos(s.db)
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(r Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(newRepos(tx)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) WithinAdvanceTx(ctx context.Context, advanceID string, fn func(r Repos, advance *domain.CashAdvance) error) error {
	return s.WithinTx(ctx, func(r Repos) error {
		// lock the advance row up-front so concurrent repayments serialize
		advance, err := r.Advances.GetByIDForUpdate(ctx, advanceID)
		if err != nil {
			return err
		}
		return fn(r, advance)
	})
}

// ErrRowNotAffected is returned when an update matched no row.
var ErrRowNotAffected = fmt.Errorf("%w: no row affected", sql.ErrNoRows)

func expectOneRow(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s %s: %w", table, id, ErrRowNotAffected)
	}
	return nil
}
