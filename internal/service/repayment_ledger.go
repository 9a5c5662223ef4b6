package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/logger"
	"github.com/sitecrew/advance-engine/internal/repository"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

const ledgerModule = "repayment_ledger"

// RepaymentLedger is the only writer of advance balances.
type RepaymentLedger struct {
	store    repository.Store
	recorder ActivityRecorder
	cache    OutstandingCache
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewRepaymentLedger(
	store repository.Store,
	recorder ActivityRecorder,
	cache OutstandingCache,
	log logrus.FieldLogger,
) *RepaymentLedger {
	return &RepaymentLedger{
		store:    store,
		recorder: recorder,
		cache:    cache,
		log:      log.WithField("module", ledgerModule),
		now:      utcNow,
	}
}

// WithClock replaces the time source.
func (l *RepaymentLedger) WithClock(now func() time.Time) *RepaymentLedger {
	l.now = now
	return l
}

// RecordRepayment records one payment against one advance and moves its
// balance and status in the same transaction. Amounts above the remaining
// balance are rejected, never clamped.
func (l *RepaymentLedger) RecordRepayment(ctx context.Context, input domain.RepaymentInput) (*domain.Repayment, error) {
	if !input.Method.IsValid() {
		return nil, customError.NewValidationError(fmt.Sprintf("unknown payment method %q", input.Method), customError.ErrInvalidPaymentMethod)
	}
	if input.Date.IsZero() {
		return nil, customError.NewValidationError("repayment_date is required", customError.ErrInvalidDate)
	}
	if input.Actor == "" {
		return nil, customError.NewValidationError("actor is required", nil)
	}

	var (
		repayment *domain.Repayment
		updated   domain.CashAdvance
	)
	err := l.store.WithinAdvanceTx(ctx, input.AdvanceID, func(r repository.Repos, advance *domain.CashAdvance) error {
		if !advance.Status.AcceptsRepayment() {
			return customError.WrapRepaymentNotAllowed(advance.ID, string(advance.Status))
		}
		if !utils.IsPositiveMoney(input.Amount) {
			return customError.WrapInvalidAmount(input.Amount)
		}
		if input.Amount.GreaterThan(advance.Balance) {
			return customError.WrapAmountExceedsBalance(input.Amount, advance.Balance)
		}

		var err error
		repayment, err = l.apply(ctx, r, advance, input)
		if err != nil {
			return err
		}
		updated = *advance
		return nil
	})
	if err != nil {
		return nil, advanceError(l.log, ledgerModule, "RecordRepayment", input.AdvanceID, err)
	}

	invalidateOutstanding(ctx, l.cache, l.log, updated.WorkerID)

	recordActivity(ctx, l.recorder, l.log, &domain.ActivityRecord{
		Actor:     input.Actor,
		Action:    domain.ActivityRepaymentRecorded,
		AdvanceID: updated.ID,
		Summary:   repaymentSummary(repayment, &updated),
		CreatedAt: repayment.CreatedAt,
	})

	l.log.WithFields(logrus.Fields{
		"advance_id":   updated.ID,
		"repayment_id": repayment.ID,
		"amount":       repayment.Amount.StringFixed(2),
		"status":       updated.Status,
	}).Info("repayment recorded")

	return repayment, nil
}

// apply inserts the repayment and writes the new balance through r. The
// advance must be locked by the caller's transaction and the amount already
// checked against its balance.
func (l *RepaymentLedger) apply(ctx context.Context, r repository.Repos, advance *domain.CashAdvance, input domain.RepaymentInput) (*domain.Repayment, error) {
	now := l.now()
	repayment := &domain.Repayment{
		ID:            uuid.NewString(),
		AdvanceID:     advance.ID,
		Amount:        input.Amount,
		RepaymentDate: utils.TruncateToDay(input.Date),
		PaymentMethod: input.Method,
		Notes:         input.Notes,
		CreatedBy:     input.Actor,
		DeductionID:   input.DeductionID,
		CreatedAt:     now,
	}

	if err := r.Repayments.Create(ctx, repayment); err != nil {
		return nil, err
	}

	advance.ApplyRepayment(input.Amount, now)

	if err := r.Advances.Update(ctx, advance); err != nil {
		return nil, err
	}

	return repayment, nil
}

// History returns the repayments of a non-archived advance in date order.
func (l *RepaymentLedger) History(ctx context.Context, advanceID string) ([]*domain.Repayment, error) {
	repos := l.store.Repos()

	if _, err := repos.Advances.GetByID(ctx, advanceID); err != nil {
		return nil, advanceError(l.log, ledgerModule, "History", advanceID, err)
	}

	repayments, err := repos.Repayments.ListByAdvanceID(ctx, advanceID)
	if err != nil {
		logger.LogError(l.log, ledgerModule, "History", "list repayments", logrus.Fields{"advance_id": advanceID}, err)
		return nil, customError.WrapDatabaseError(err)
	}

	return repayments, nil
}

func repaymentSummary(repayment *domain.Repayment, advance *domain.CashAdvance) string {
	return fmt.Sprintf("recorded %s repayment of %s, balance %s, status %s",
		repayment.PaymentMethod,
		repayment.Amount.StringFixed(2),
		advance.Balance.StringFixed(2),
		advance.Status,
	)
}
