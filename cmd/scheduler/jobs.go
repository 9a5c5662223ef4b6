package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/config"
	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/logger"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

type payrollRunner interface {
	Run(ctx context.Context, period domain.PayrollPeriod, actor string) (*domain.SyncResult, error)
}

var nowFunc = time.Now

// syncJob runs the payroll deduction sync for the period that closed
// yesterday.
type syncJob struct {
	sync  payrollRunner
	cfg   config.PayrollConfig
	loc   *time.Location
	log   logrus.FieldLogger
	clock func() time.Time
}

func (j *syncJob) Run() {
	period := closedPeriod(j.clock(), j.loc, j.cfg.PeriodDays)
	log := j.log.WithField("period", period.String())
	log.Info("running payroll deduction sync")

	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.SyncLockTTL)
	defer cancel()

	result, err := j.sync.Run(ctx, period, j.cfg.SyncActor)
	if err != nil {
		logger.LogError(log, "scheduler", "syncJob.Run", "payroll sync", nil, err)
		return
	}

	log.WithFields(logrus.Fields{
		"applied": len(result.Applied),
		"skipped": len(result.Skipped),
		"failed":  len(result.Failed),
	}).Info("payroll deduction sync done")
}

// closedPeriod returns the days-long period ending on the day before now in
// loc, as UTC calendar dates.
func closedPeriod(now time.Time, loc *time.Location, days int) domain.PayrollPeriod {
	y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
	start, end := utils.PeriodEndingOn(time.Date(y, m, d, 0, 0, 0, 0, time.UTC), days)
	return domain.PayrollPeriod{Start: start, End: end}
}
