package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every BusinessError carries exactly one of these and matches it
// with errors.Is, so callers can branch without inspecting messages.
var (
	ErrValidation   = errors.New("validation error")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("not found")
	ErrStore        = errors.New("store error")
)

// Domain errors
var (
	ErrAdvanceNotFound         = errors.New("cash advance not found")
	ErrWorkerNotFound          = errors.New("worker not found")
	ErrWorkerInactive          = errors.New("worker is not active")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrAmountExceedsBalance    = errors.New("amount exceeds remaining balance")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrRepaymentNotAllowed     = errors.New("repayment not allowed in current status")
	ErrInvalidPaymentMethod    = errors.New("invalid payment method")
	ErrInvalidDate             = errors.New("invalid date")
	ErrSyncAlreadyRunning      = errors.New("payroll sync already running for period")
	ErrNoOutstandingAdvance    = errors.New("no outstanding advance for worker")
	ErrDeductionAlreadyApplied = errors.New("deduction already applied for period")
	ErrDeductionInactive       = errors.New("deduction no longer active")
	ErrDeductionNotPositive    = errors.New("deduction amount is not positive")
	ErrLockHeld                = errors.New("lock is held by another process")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *BusinessError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewBusinessError creates a new business error
func NewBusinessError(kind error, code, message string, err error) *BusinessError {
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeAmountExceedsBalance = "AMOUNT_EXCEEDS_BALANCE"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeAdvanceNotFound      = "ADVANCE_NOT_FOUND"
	ErrCodeWorkerNotFound       = "WORKER_NOT_FOUND"
	ErrCodeWorkerInactive       = "WORKER_INACTIVE"
	ErrCodeSyncAlreadyRunning   = "SYNC_ALREADY_RUNNING"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
	ErrCodeDependencyDown       = "DEPENDENCY_UNAVAILABLE"
)

// KindOf returns the kind sentinel of err, or nil when err is not a BusinessError.
func KindOf(err error) error {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Kind
	}
	return nil
}

func NewValidationError(message string, err error) *BusinessError {
	return NewBusinessError(ErrValidation, ErrCodeValidation, message, err)
}

func NewInvalidStateError(message string, err error) *BusinessError {
	return NewBusinessError(ErrInvalidState, ErrCodeInvalidState, message, err)
}

func WrapInvalidAmount(amount decimal.Decimal) *BusinessError {
	return NewBusinessError(
		ErrValidation,
		ErrCodeInvalidAmount,
		fmt.Sprintf("amount must be greater than zero with at most 2 decimal places, got %s", amount.String()),
		ErrInvalidAmount,
	)
}

func WrapAmountExceedsBalance(amount, balance decimal.Decimal) *BusinessError {
	return NewBusinessError(
		ErrValidation,
		ErrCodeAmountExceedsBalance,
		fmt.Sprintf("amount %s exceeds remaining balance of %s", amount.StringFixed(2), balance.StringFixed(2)),
		ErrAmountExceedsBalance,
	)
}

func WrapAdvanceNotFound(advanceID string) *BusinessError {
	return NewBusinessError(
		ErrNotFound,
		ErrCodeAdvanceNotFound,
		fmt.Sprintf("cash advance with ID %s not found", advanceID),
		ErrAdvanceNotFound,
	)
}

func WrapWorkerNotFound(workerID string) *BusinessError {
	return NewBusinessError(
		ErrValidation,
		ErrCodeWorkerNotFound,
		fmt.Sprintf("worker with ID %s not found", workerID),
		ErrWorkerNotFound,
	)
}

func WrapWorkerInactive(workerID string) *BusinessError {
	return NewBusinessError(
		ErrValidation,
		ErrCodeWorkerInactive,
		fmt.Sprintf("worker with ID %s is not active", workerID),
		ErrWorkerInactive,
	)
}

func WrapInvalidTransition(advanceID, from, to string) *BusinessError {
	return NewBusinessError(
		ErrInvalidState,
		ErrCodeInvalidState,
		fmt.Sprintf("cash advance %s cannot move from %s to %s", advanceID, from, to),
		ErrInvalidTransition,
	)
}

func WrapRepaymentNotAllowed(advanceID, status string) *BusinessError {
	return NewBusinessError(
		ErrInvalidState,
		ErrCodeInvalidState,
		fmt.Sprintf("cash advance %s is %s and cannot accept repayments", advanceID, status),
		ErrRepaymentNotAllowed,
	)
}

func WrapSyncAlreadyRunning(period string) *BusinessError {
	return NewBusinessError(
		ErrInvalidState,
		ErrCodeSyncAlreadyRunning,
		fmt.Sprintf("payroll sync for period %s is already running", period),
		ErrSyncAlreadyRunning,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrStore,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrStore,
		ErrCodeCacheError,
		"cache operation failed",
		err,
	)
}

// WrapStoreIfNeeded passes business errors through and wraps anything else as a
// database failure.
func WrapStoreIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	return WrapDatabaseError(err)
}
