package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deduction types and statuses owned by the payroll subsystem. Only the
// cash advance type is consumed here.
const (
	DeductionTypeCashAdvance = "cashadvance"

	DeductionStatusApplied   = "applied"
	DeductionStatusCancelled = "cancelled"
)

// Deduction is a payroll withholding line item.
type Deduction struct {
	ID            string          `json:"id" db:"id"`
	WorkerID      string          `json:"worker_id" db:"worker_id"`
	DeductionType string          `json:"deduction_type" db:"deduction_type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	Status        string          `json:"status" db:"status"`
}

// PayrollPeriod is the closed date range a payroll run covers.
type PayrollPeriod struct {
	Start time.Time
	End   time.Time
}

func (p PayrollPeriod) String() string {
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

type PayrollSyncRequest struct {
	PeriodStart string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"required,datetime=2006-01-02"`
	Actor       string `json:"actor" validate:"required"`
}

// SkippedDeduction explains why a deduction produced no repayment.
type SkippedDeduction struct {
	DeductionID string `json:"deduction_id"`
	WorkerID    string `json:"worker_id"`
	Reason      string `json:"reason"`
	Cause       error  `json:"-"`
}

// SyncFailure is one deduction that failed during a sync run.
type SyncFailure struct {
	DeductionID string `json:"deduction_id"`
	Message     string `json:"error"`
	Err         error  `json:"-"`
}

func (f SyncFailure) Error() string {
	return "deduction " + f.DeductionID + ": " + f.Message
}

func (f SyncFailure) Unwrap() error {
	return f.Err
}

// SyncResult is the itemized outcome of one payroll sync run.
type SyncResult struct {
	Applied []*Repayment       `json:"applied"`
	Skipped []SkippedDeduction `json:"skipped"`
	Failed  []SyncFailure      `json:"failed"`
}
