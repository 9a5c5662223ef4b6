package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitecrew/advance-engine/internal/domain"
)

// Lookups that find nothing return sql.ErrNoRows.

// AdvanceRepository defines the interface for cash advance data operations
type AdvanceRepository interface {
	// Create inserts a new cash advance
	Create(ctx context.Context, advance *domain.CashAdvance) error

	// GetByID retrieves a non-archived advance
	GetByID(ctx context.Context, id string) (*domain.CashAdvance, error)

	// GetByIDForUpdate retrieves a non-archived advance and locks its row until
	// the surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id string) (*domain.CashAdvance, error)

	// Update persists the mutable columns of an advance
	Update(ctx context.Context, advance *domain.CashAdvance) error

	// List returns one page of non-archived advances and the total match count
	List(ctx context.Context, filter domain.AdvanceFilter) ([]*domain.CashAdvance, int, error)

	// GetOldestOutstandingForUpdate locks the worker's oldest approved or
	// repaying advance with a positive balance
	GetOldestOutstandingForUpdate(ctx context.Context, workerID string) (*domain.CashAdvance, error)

	// SumOutstanding totals the balances of the worker's outstanding advances
	SumOutstanding(ctx context.Context, workerID string) (decimal.Decimal, error)
}

// RepaymentRepository defines the interface for repayment data operations
type RepaymentRepository interface {
	// Create inserts a repayment record
	Create(ctx context.Context, repayment *domain.Repayment) error

	// ListByAdvanceID returns repayments ordered by date, then creation order
	ListByAdvanceID(ctx context.Context, advanceID string) ([]*domain.Repayment, error)

	// ExistsForDeduction reports whether a deduction was already turned into a
	// repayment dated on the given day
	ExistsForDeduction(ctx context.Context, deductionID string, repaymentDate time.Time) (bool, error)
}

// DeductionRepository reads and retires payroll deductions. The table belongs
// to payroll; only is_active and status are written here.
type DeductionRepository interface {
	// ListActiveCashAdvance returns active, applied cash advance deductions
	ListActiveCashAdvance(ctx context.Context) ([]*domain.Deduction, error)

	// GetByIDForUpdate retrieves a deduction and locks its row
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Deduction, error)

	// Deactivate marks an active deduction inactive and cancelled
	Deactivate(ctx context.Context, id string) error
}

// WorkerRepository reads worker records owned by the workforce module
type WorkerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Worker, error)
}

// ActivityRepository appends to the external activity log
type ActivityRepository interface {
	Append(ctx context.Context, record *domain.ActivityRecord) error
}

// Repos groups repositories bound to the same connection or transaction.
type Repos struct {
	Advances   AdvanceRepository
	Repayments RepaymentRepository
	Deductions DeductionRepository
	Workers    WorkerRepository
}

// Store hands out repositories and runs units of work.
type Store interface {
	// Repos returns repositories outside of any transaction
	Repos() Repos

	// WithinTx runs fn in a transaction; a non-nil error rolls everything back
	WithinTx(ctx context.Context, fn func(r Repos) error) error

	// WithinAdvanceTx locks the advance row first, then runs fn in the same
	// transaction
	WithinAdvanceTx(ctx context.Context, advanceID string, fn func(r Repos, advance *domain.CashAdvance) error) error
}
