package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a repayment reached us.
type PaymentMethod string

const (
	PaymentMethodCash             PaymentMethod = "cash"
	PaymentMethodPayrollDeduction PaymentMethod = "payroll_deduction"
	PaymentMethodBankTransfer     PaymentMethod = "bank_transfer"
	PaymentMethodCheck            PaymentMethod = "check"
	PaymentMethodOther            PaymentMethod = "other"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodPayrollDeduction, PaymentMethodBankTransfer,
		PaymentMethodCheck, PaymentMethodOther:
		return true
	}
	return false
}

// Repayment is one immutable payment event against a cash advance.
type Repayment struct {
	ID            string          `json:"id" db:"id"`
	AdvanceID     string          `json:"advance_id" db:"advance_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	RepaymentDate time.Time       `json:"repayment_date" db:"repayment_date"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	Notes         string          `json:"notes" db:"notes"`
	CreatedBy     string          `json:"created_by" db:"created_by"`
	DeductionID   *string         `json:"deduction_id,omitempty" db:"deduction_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// RepaymentInput is what the ledger needs to record one payment.
type RepaymentInput struct {
	AdvanceID   string
	Amount      decimal.Decimal
	Method      PaymentMethod
	Date        time.Time
	Notes       string
	Actor       string
	DeductionID *string
}

type RecordRepaymentRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"required,oneof=cash payroll_deduction bank_transfer check other"`
	RepaymentDate string          `json:"repayment_date" validate:"required,datetime=2006-01-02"`
	Notes         string          `json:"notes" validate:"max=500"`
	Actor         string          `json:"actor" validate:"required"`
}

type RepaymentHistoryResponse struct {
	AdvanceID  string       `json:"advance_id"`
	Repayments []*Repayment `json:"repayments"`
}
