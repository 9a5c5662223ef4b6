package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/config"
	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/logger"
	"github.com/sitecrew/advance-engine/internal/repository"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

const advanceModule = "advance_service"

// AdvanceService owns the cash advance lifecycle up to the point repayments
// start. Balance changes go through RepaymentLedger.
type AdvanceService struct {
	store    repository.Store
	recorder ActivityRecorder
	cache    OutstandingCache
	config   *config.Config
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewAdvanceService(
	store repository.Store,
	recorder ActivityRecorder,
	cache OutstandingCache,
	config *config.Config,
	log logrus.FieldLogger,
) *AdvanceService {
	return &AdvanceService{
		store:    store,
		recorder: recorder,
		cache:    cache,
		config:   config,
		log:      log.WithField("module", advanceModule),
		now:      utcNow,
	}
}

// WithClock replaces the time source.
func (s *AdvanceService) WithClock(now func() time.Time) *AdvanceService {
	s.now = now
	return s
}

// RequestAdvance creates a pending advance for an active worker.
func (s *AdvanceService) RequestAdvance(ctx context.Context, request *domain.CreateAdvanceRequest) (*domain.CashAdvance, error) {
	if request.WorkerID == "" {
		return nil, customError.NewValidationError("worker_id is required", nil)
	}
	if !utils.IsPositiveMoney(request.Amount) {
		return nil, customError.WrapInvalidAmount(request.Amount)
	}

	repos := s.store.Repos()

	worker, err := repos.Workers.GetByID(ctx, request.WorkerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapWorkerNotFound(request.WorkerID)
		}
		logger.LogError(s.log, advanceModule, "RequestAdvance", "load worker", logrus.Fields{"worker_id": request.WorkerID}, err)
		return nil, customError.WrapDatabaseError(err)
	}
	if !worker.IsActive {
		return nil, customError.WrapWorkerInactive(request.WorkerID)
	}

	now := s.now()
	advance := &domain.CashAdvance{
		ID:              uuid.NewString(),
		WorkerID:        worker.ID,
		Amount:          request.Amount,
		Balance:         request.Amount,
		RepaymentAmount: decimal.Zero,
		Status:          domain.AdvanceStatusPending,
		Reason:          request.Reason,
		RequestDate:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := repos.Advances.Create(ctx, advance); err != nil {
		logger.LogError(s.log, advanceModule, "RequestAdvance", "insert advance", logrus.Fields{"worker_id": worker.ID}, err)
		return nil, customError.WrapDatabaseError(err)
	}

	actor := request.Actor
	if actor == "" {
		actor = worker.ID
	}
	recordActivity(ctx, s.recorder, s.log, &domain.ActivityRecord{
		Actor:     actor,
		Action:    domain.ActivityAdvanceRequested,
		AdvanceID: advance.ID,
		Summary:   fmt.Sprintf("requested cash advance of %s for worker %s", advance.Amount.StringFixed(2), worker.ID),
		CreatedAt: now,
	})

	s.log.WithFields(logrus.Fields{
		"advance_id": advance.ID,
		"worker_id":  worker.ID,
		"amount":     advance.Amount.StringFixed(2),
	}).Info("cash advance requested")

	return advance, nil
}

// Decide applies an approve or reject decision to a pending advance.
func (s *AdvanceService) Decide(ctx context.Context, advanceID string, decision domain.Decision, actor string) (*domain.CashAdvance, error) {
	switch decision {
	case domain.DecisionApprove:
		return s.Approve(ctx, advanceID, actor)
	case domain.DecisionReject:
		return s.Reject(ctx, advanceID, actor)
	default:
		return nil, customError.NewValidationError(fmt.Sprintf("decision must be approve or reject, got %q", decision), nil)
	}
}

func (s *AdvanceService) Approve(ctx context.Context, advanceID, approver string) (*domain.CashAdvance, error) {
	return s.decide(ctx, advanceID, approver, domain.AdvanceStatusApproved, domain.ActivityAdvanceApproved)
}

func (s *AdvanceService) Reject(ctx context.Context, advanceID, approver string) (*domain.CashAdvance, error) {
	return s.decide(ctx, advanceID, approver, domain.AdvanceStatusRejected, domain.ActivityAdvanceRejected)
}

func (s *AdvanceService) decide(ctx context.Context, advanceID, approver string, target domain.AdvanceStatus, action string) (*domain.CashAdvance, error) {
	if approver == "" {
		return nil, customError.NewValidationError("actor is required", nil)
	}

	var result *domain.CashAdvance
	now := s.now()
	err := s.store.WithinAdvanceTx(ctx, advanceID, func(r repository.Repos, advance *domain.CashAdvance) error {
		if advance.Status != domain.AdvanceStatusPending || !advance.Status.CanTransitionTo(target) {
			return customError.WrapInvalidTransition(advance.ID, string(advance.Status), string(target))
		}

		advance.Status = target
		advance.ApprovedBy = &approver
		advance.ApprovedAt = &now
		advance.UpdatedAt = now

		if err := r.Advances.Update(ctx, advance); err != nil {
			return err
		}
		result = advance
		return nil
	})
	if err != nil {
		return nil, advanceError(s.log, advanceModule, "decide", advanceID, err)
	}

	if target == domain.AdvanceStatusApproved {
		invalidateOutstanding(ctx, s.cache, s.log, result.WorkerID)
	}

	recordActivity(ctx, s.recorder, s.log, &domain.ActivityRecord{
		Actor:     approver,
		Action:    action,
		AdvanceID: result.ID,
		Summary:   fmt.Sprintf("cash advance of %s for worker %s %s", result.Amount.StringFixed(2), result.WorkerID, target),
		CreatedAt: now,
	})

	return result, nil
}

// Get returns a non-archived advance.
func (s *AdvanceService) Get(ctx context.Context, advanceID string) (*domain.CashAdvance, error) {
	advance, err := s.store.Repos().Advances.GetByID(ctx, advanceID)
	if err != nil {
		return nil, advanceError(s.log, advanceModule, "Get", advanceID, err)
	}
	return advance, nil
}

// List returns one page of advances. Page sizes are clamped to the configured
// maximum.
func (s *AdvanceService) List(ctx context.Context, filter domain.AdvanceFilter) (*domain.AdvancePage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, customError.NewValidationError(fmt.Sprintf("unknown status %q", filter.Status), nil)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, customError.NewValidationError("from must not be after to", nil)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.config.Business.DefaultPageSize
	}
	if filter.PageSize > s.config.Business.MaxPageSize {
		filter.PageSize = s.config.Business.MaxPageSize
	}
	if filter.Page > math.MaxInt/filter.PageSize {
		return nil, customError.NewValidationError(fmt.Sprintf("page must not exceed %d", math.MaxInt/filter.PageSize), nil)
	}

	items, total, err := s.store.Repos().Advances.List(ctx, filter)
	if err != nil {
		logger.LogError(s.log, advanceModule, "List", "list advances", logrus.Fields{"worker_id": filter.WorkerID}, err)
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.AdvancePage{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Archive soft-deletes an advance. Archived advances are invisible to reads
// and to payroll matching; their repayments are kept.
func (s *AdvanceService) Archive(ctx context.Context, advanceID, actor string) error {
	if actor == "" {
		return customError.NewValidationError("actor is required", nil)
	}

	var archived *domain.CashAdvance
	now := s.now()
	err := s.store.WithinAdvanceTx(ctx, advanceID, func(r repository.Repos, advance *domain.CashAdvance) error {
		advance.IsArchived = true
		advance.UpdatedAt = now
		if err := r.Advances.Update(ctx, advance); err != nil {
			return err
		}
		archived = advance
		return nil
	})
	if err != nil {
		return advanceError(s.log, advanceModule, "Archive", advanceID, err)
	}

	invalidateOutstanding(ctx, s.cache, s.log, archived.WorkerID)

	recordActivity(ctx, s.recorder, s.log, &domain.ActivityRecord{
		Actor:     actor,
		Action:    domain.ActivityAdvanceArchived,
		AdvanceID: archived.ID,
		Summary:   fmt.Sprintf("archived %s cash advance with balance %s", archived.Status, archived.Balance.StringFixed(2)),
		CreatedAt: now,
	})

	return nil
}

// GetWorkerOutstanding totals the balances a worker still owes. Results are
// cached until the worker's advances change.
func (s *AdvanceService) GetWorkerOutstanding(ctx context.Context, workerID string) (decimal.Decimal, error) {
	if workerID == "" {
		return decimal.Zero, customError.NewValidationError("worker_id is required", nil)
	}

	// the version is read before summing so a concurrent invalidation wins
	cacheable := s.cache != nil
	var version int64
	if cacheable {
		cached, v, ok, err := s.cache.GetOutstanding(ctx, workerID)
		switch {
		case err != nil:
			s.log.WithField("worker_id", workerID).WithError(err).Warn("outstanding cache read failed")
			cacheable = false
		case ok:
			return cached, nil
		default:
			version = v
		}
	}

	total, err := s.store.Repos().Advances.SumOutstanding(ctx, workerID)
	if err != nil {
		logger.LogError(s.log, advanceModule, "GetWorkerOutstanding", "sum outstanding", logrus.Fields{"worker_id": workerID}, err)
		return decimal.Zero, customError.WrapDatabaseError(err)
	}

	if cacheable {
		if err := s.cache.SetOutstanding(ctx, workerID, total, version); err != nil {
			s.log.WithField("worker_id", workerID).WithError(err).Warn("outstanding cache write failed")
		}
	}

	return total, nil
}
