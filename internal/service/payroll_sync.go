package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/logger"
	"github.com/sitecrew/advance-engine/internal/repository"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

const (
	syncModule = "payroll_sync"

	payrollDeductionNotes = "Automatic deduction from payroll"
)

// PayrollSync turns active cash advance deductions into repayments once per
// payroll run. Each deduction is applied in its own transaction.
type PayrollSync struct {
	store    repository.Store
	ledger   *RepaymentLedger
	recorder ActivityRecorder
	cache    OutstandingCache
	locker   RunLocker
	lockTTL  time.Duration
	log      logrus.FieldLogger
}

func NewPayrollSync(
	store repository.Store,
	ledger *RepaymentLedger,
	recorder ActivityRecorder,
	cache OutstandingCache,
	locker RunLocker,
	lockTTL time.Duration,
	log logrus.FieldLogger,
) *PayrollSync {
	return &PayrollSync{
		store:    store,
		ledger:   ledger,
		recorder: recorder,
		cache:    cache,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      log.WithField("module", syncModule),
	}
}

// deductionOutcome is what one deduction produced. Exactly one of repayment
// and skip is set; skip is one of the deduction sentinels in pkg/errors.
type deductionOutcome struct {
	repayment   *domain.Repayment
	advance     domain.CashAdvance
	excess      decimal.Decimal
	deactivated bool
	skip        error
}

// Run applies every active cash advance deduction for the period. Per
// deduction failures are collected in the result; an error is returned only
// when the run could not start.
func (p *PayrollSync) Run(ctx context.Context, period domain.PayrollPeriod, actor string) (*domain.SyncResult, error) {
	if period.Start.IsZero() || period.End.IsZero() {
		return nil, customError.NewValidationError("period_start and period_end are required", customError.ErrInvalidDate)
	}
	if period.Start.After(period.End) {
		return nil, customError.NewValidationError("period_start must not be after period_end", customError.ErrInvalidDate)
	}
	if actor == "" {
		return nil, customError.NewValidationError("actor is required", nil)
	}

	log := p.log.WithField("period", period.String())

	if p.locker != nil {
		key := lockKey(period)
		release, err := p.locker.Obtain(ctx, key, p.lockTTL)
		if err != nil {
			if errors.Is(err, customError.ErrLockHeld) {
				return nil, customError.WrapSyncAlreadyRunning(period.String())
			}
			logger.LogError(log, syncModule, "Run", "obtain run lock", logrus.Fields{"key": key}, err)
			return nil, customError.WrapCacheError(err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("failed to release payroll sync lock")
			}
		}()
	}

	deductions, err := p.store.Repos().Deductions.ListActiveCashAdvance(ctx)
	if err != nil {
		logger.LogError(log, syncModule, "Run", "list active deductions", nil, err)
		return nil, customError.WrapDatabaseError(err)
	}

	result := &domain.SyncResult{
		Applied: []*domain.Repayment{},
		Skipped: []domain.SkippedDeduction{},
		Failed:  []domain.SyncFailure{},
	}

	for _, deduction := range deductions {
		entry := log.WithFields(logrus.Fields{
			"deduction_id": deduction.ID,
			"worker_id":    deduction.WorkerID,
		})

		outcome, err := p.syncDeduction(ctx, deduction, period, actor)
		if err != nil {
			result.Failed = append(result.Failed, p.failure(entry, deduction, err))
			continue
		}

		if outcome.skip != nil {
			entry.WithField("reason", outcome.skip.Error()).Info("deduction skipped")
			result.Skipped = append(result.Skipped, domain.SkippedDeduction{
				DeductionID: deduction.ID,
				WorkerID:    deduction.WorkerID,
				Reason:      outcome.skip.Error(),
				Cause:       outcome.skip,
			})
			continue
		}

		result.Applied = append(result.Applied, outcome.repayment)
		p.afterApply(ctx, entry, deduction, outcome, actor)
	}

	log.WithFields(logrus.Fields{
		"applied": len(result.Applied),
		"skipped": len(result.Skipped),
		"failed":  len(result.Failed),
	}).Info("payroll sync finished")

	return result, nil
}

func (p *PayrollSync) syncDeduction(ctx context.Context, deduction *domain.Deduction, period domain.PayrollPeriod, actor string) (*deductionOutcome, error) {
	outcome := &deductionOutcome{}

	err := p.store.WithinTx(ctx, func(r repository.Repos) error {
		// another run may have retired it since the listing
		locked, err := r.Deductions.GetByIDForUpdate(ctx, deduction.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome.skip = customError.ErrDeductionInactive
				return nil
			}
			return err
		}
		if !locked.IsActive || locked.Status != domain.DeductionStatusApplied {
			outcome.skip = customError.ErrDeductionInactive
			return nil
		}
		if !locked.Amount.IsPositive() {
			outcome.skip = customError.ErrDeductionNotPositive
			return nil
		}

		applied, err := r.Repayments.ExistsForDeduction(ctx, locked.ID, period.End)
		if err != nil {
			return err
		}
		if applied {
			outcome.skip = customError.ErrDeductionAlreadyApplied
			return nil
		}

		advance, err := r.Advances.GetOldestOutstandingForUpdate(ctx, locked.WorkerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome.skip = customError.ErrNoOutstandingAdvance
				return nil
			}
			return err
		}

		amount := utils.MinDecimal(locked.Amount, advance.Balance)
		deductionID := locked.ID
		repayment, err := p.ledger.apply(ctx, r, advance, domain.RepaymentInput{
			AdvanceID:   advance.ID,
			Amount:      amount,
			Method:      domain.PaymentMethodPayrollDeduction,
			Date:        period.End,
			Notes:       payrollDeductionNotes,
			Actor:       actor,
			DeductionID: &deductionID,
		})
		if err != nil {
			return err
		}

		if advance.Status == domain.AdvanceStatusCompleted {
			if err := r.Deductions.Deactivate(ctx, locked.ID); err != nil {
				return err
			}
			outcome.deactivated = true
		}

		outcome.repayment = repayment
		outcome.advance = *advance
		outcome.excess = locked.Amount.Sub(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

func (p *PayrollSync) afterApply(ctx context.Context, log logrus.FieldLogger, deduction *domain.Deduction, outcome *deductionOutcome, actor string) {
	invalidateOutstanding(ctx, p.cache, log, outcome.advance.WorkerID)

	summary := repaymentSummary(outcome.repayment, &outcome.advance)
	if outcome.excess.IsPositive() {
		summary += fmt.Sprintf("; excess %s of deduction %s discarded", outcome.excess.StringFixed(2), deduction.ID)
		log.WithField("excess", outcome.excess.StringFixed(2)).Info("deduction exceeded remaining balance")
	}
	if outcome.deactivated {
		summary += fmt.Sprintf("; deduction %s deactivated", deduction.ID)
	}

	recordActivity(ctx, p.recorder, log, &domain.ActivityRecord{
		Actor:     actor,
		Action:    domain.ActivityPayrollDeduction,
		AdvanceID: outcome.advance.ID,
		Summary:   summary,
		CreatedAt: outcome.repayment.CreatedAt,
	})

	log.WithFields(logrus.Fields{
		"advance_id": outcome.advance.ID,
		"amount":     outcome.repayment.Amount.StringFixed(2),
		"status":     outcome.advance.Status,
	}).Info("deduction applied")
}

func (p *PayrollSync) failure(log logrus.FieldLogger, deduction *domain.Deduction, err error) domain.SyncFailure {
	if customError.KindOf(err) == nil {
		logger.LogError(log, syncModule, "Run", "apply deduction", logrus.Fields{"deduction_id": deduction.ID}, err)
	} else {
		log.WithError(err).Warn("deduction failed")
	}

	var be *customError.BusinessError
	errors.As(customError.WrapStoreIfNeeded(err), &be)

	return domain.SyncFailure{
		DeductionID: deduction.ID,
		Message:     be.Message,
		Err:         be,
	}
}

func lockKey(period domain.PayrollPeriod) string {
	return "payroll-sync:" + period.Start.Format(utils.DateLayout) + ":" + period.End.Format(utils.DateLayout)
}
