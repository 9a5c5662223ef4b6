package domain

import "time"

// Activity actions written to the activity log.
const (
	ActivityAdvanceRequested  = "cash_advance_requested"
	ActivityAdvanceApproved   = "cash_advance_approved"
	ActivityAdvanceRejected   = "cash_advance_rejected"
	ActivityAdvanceArchived   = "cash_advance_archived"
	ActivityRepaymentRecorded = "cash_advance_repayment"
	ActivityPayrollDeduction  = "cash_advance_payroll_deduction"
)

// ActivityRecord is one entry for the external activity log.
type ActivityRecord struct {
	ID        string    `json:"id" db:"id"`
	Actor     string    `json:"actor" db:"actor"`
	Action    string    `json:"action" db:"action"`
	AdvanceID string    `json:"advance_id" db:"advance_id"`
	Summary   string    `json:"summary" db:"summary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
