package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/logger"
	"github.com/sitecrew/advance-engine/internal/repository"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
)

// ActivityRecorder writes entries to the external activity log.
type ActivityRecorder interface {
	Record(ctx context.Context, entry *domain.ActivityRecord) error
}

// OutstandingCache caches the total outstanding balance per worker.
// GetOutstanding reports the worker's cache version even on a miss;
// SetOutstanding drops the write when InvalidateOutstanding ran after that
// version was read.
type OutstandingCache interface {
	GetOutstanding(ctx context.Context, workerID string) (amount decimal.Decimal, version int64, hit bool, err error)
	SetOutstanding(ctx context.Context, workerID string, amount decimal.Decimal, version int64) error
	InvalidateOutstanding(ctx context.Context, workerID string) error
}

// RunLocker hands out named, expiring locks. Obtain returns
// customError.ErrLockHeld when another holder has the key.
type RunLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type activityRecorder struct {
	repo repository.ActivityRepository
}

// NewActivityRecorder appends activity entries through the activity repository.
func NewActivityRecorder(repo repository.ActivityRepository) ActivityRecorder {
	return &activityRecorder{repo: repo}
}

func (r *activityRecorder) Record(ctx context.Context, entry *domain.ActivityRecord) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.repo.Append(ctx, entry)
}

// recordActivity is best-effort: the primary operation has already committed.
func recordActivity(ctx context.Context, recorder ActivityRecorder, log logrus.FieldLogger, entry *domain.ActivityRecord) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, entry); err != nil {
		log.WithFields(logrus.Fields{
			"action":     entry.Action,
			"advance_id": entry.AdvanceID,
			"actor":      entry.Actor,
		}).WithError(err).Warn("failed to record activity")
	}
}

func invalidateOutstanding(ctx context.Context, cache OutstandingCache, log logrus.FieldLogger, workerID string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateOutstanding(ctx, workerID); err != nil {
		log.WithField("worker_id", workerID).WithError(err).Warn("failed to invalidate outstanding cache")
	}
}

// advanceError maps a unit-of-work error on one advance to the business error
// returned to callers. Unexpected errors are logged before being wrapped.
func advanceError(log logrus.FieldLogger, module, funcName, advanceID string, err error) error {
	if err == nil || customError.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return customError.WrapAdvanceNotFound(advanceID)
	}
	logger.LogError(log, module, funcName, "advance unit of work", logrus.Fields{"advance_id": advanceID}, err)
	return customError.WrapStoreIfNeeded(err)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
