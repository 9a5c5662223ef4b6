package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/sitecrew/advance-engine/internal/app"
	"github.com/sitecrew/advance-engine/internal/config"
	"github.com/sitecrew/advance-engine/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.Logging)
	logg.Info("starting payroll scheduler")

	a, err := app.New(cfg, logg)
	if err != nil {
		logg.WithError(err).Fatal("failed to initialize")
	}
	defer a.Close()

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.PayrollLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	job := &syncJob{
		sync:  a.Sync,
		cfg:   cfg.Payroll,
		loc:   cfg.PayrollLocation(),
		log:   logg.WithField("module", "scheduler"),
		clock: nowFunc,
	}
	if _, err := c.AddJob(cfg.Payroll.SyncSchedule, job); err != nil {
		logg.WithError(err).Fatal("failed to schedule payroll sync")
	}

	c.Start()
	logg.WithField("schedule", cfg.Payroll.SyncSchedule).Info("scheduler started")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down scheduler")
	<-c.Stop().Done()
	logg.Info("scheduler stopped")
}
