package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdvanceStatus is the lifecycle state of a cash advance.
type AdvanceStatus string

const (
	AdvanceStatusPending   AdvanceStatus = "pending"
	AdvanceStatusApproved  AdvanceStatus = "approved"
	AdvanceStatusRejected  AdvanceStatus = "rejected"
	AdvanceStatusRepaying  AdvanceStatus = "repaying"
	AdvanceStatusCompleted AdvanceStatus = "completed"
)

var advanceTransitions = map[AdvanceStatus][]AdvanceStatus{
	AdvanceStatusPending:  {AdvanceStatusApproved, AdvanceStatusRejected},
	AdvanceStatusApproved: {AdvanceStatusRepaying, AdvanceStatusCompleted},
	AdvanceStatusRepaying: {AdvanceStatusRepaying, AdvanceStatusCompleted},
}

// CanTransitionTo reports whether next is reachable from s in one step.
// repaying -> repaying is allowed so that partial payments stay idempotent.
func (s AdvanceStatus) CanTransitionTo(next AdvanceStatus) bool {
	for _, allowed := range advanceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsRepayment reports whether a repayment may be recorded in this status.
func (s AdvanceStatus) AcceptsRepayment() bool {
	return s == AdvanceStatusApproved || s == AdvanceStatusRepaying
}

func (s AdvanceStatus) IsValid() bool {
	switch s {
	case AdvanceStatusPending, AdvanceStatusApproved, AdvanceStatusRejected,
		AdvanceStatusRepaying, AdvanceStatusCompleted:
		return true
	}
	return false
}

// CashAdvance represents a sum granted to a worker against future pay.
// Balance + RepaymentAmount always equals Amount.
type CashAdvance struct {
	ID              string          `json:"id" db:"id"`
	WorkerID        string          `json:"worker_id" db:"worker_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Balance         decimal.Decimal `json:"balance" db:"balance"`
	RepaymentAmount decimal.Decimal `json:"repayment_amount" db:"repayment_amount"`
	Status          AdvanceStatus   `json:"status" db:"status"`
	Reason          string          `json:"reason" db:"reason"`
	RequestDate     time.Time       `json:"request_date" db:"request_date"`
	ApprovedBy      *string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	IsArchived      bool            `json:"is_archived" db:"is_archived"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ApplyRepayment moves amount from Balance to RepaymentAmount and advances the
// status. The caller has already checked 0 < amount <= Balance.
func (a *CashAdvance) ApplyRepayment(amount decimal.Decimal, now time.Time) {
	a.Balance = a.Balance.Sub(amount)
	a.RepaymentAmount = a.RepaymentAmount.Add(amount)
	if a.Balance.IsZero() {
		a.Status = AdvanceStatusCompleted
		a.CompletedAt = &now
	} else {
		a.Status = AdvanceStatusRepaying
	}
	a.UpdatedAt = now
}

// IsOutstanding reports whether the advance still has money owed on it.
func (a *CashAdvance) IsOutstanding() bool {
	return a.Status.AcceptsRepayment() && a.Balance.IsPositive()
}

// Decision is an administrator's verdict on a pending advance.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DTOs for requests and responses

type CreateAdvanceRequest struct {
	WorkerID string          `json:"worker_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reason   string          `json:"reason" validate:"max=500"`
	Actor    string          `json:"actor"`
}

type CreateAdvanceResponse struct {
	AdvanceID string `json:"advance_id"`
}

type DecisionRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=approve reject"`
	Actor    string   `json:"actor" validate:"required"`
}

type ArchiveRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// AdvanceFilter narrows advance listings. Zero values mean "any".
type AdvanceFilter struct {
	WorkerID string
	Status   AdvanceStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Offset returns the row offset for the filter's page (pages start at 1).
func (f AdvanceFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

type AdvancePage struct {
	Items    []*CashAdvance `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type OutstandingResponse struct {
	WorkerID    string          `json:"worker_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
}
