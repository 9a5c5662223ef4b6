// Package app wires configuration, connections and services for the binaries.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/cache"
	"github.com/sitecrew/advance-engine/internal/config"
	"github.com/sitecrew/advance-engine/internal/repository"
	"github.com/sitecrew/advance-engine/internal/service"
)

type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Advances *service.AdvanceService
	Ledger   *service.RepaymentLedger
	Sync     *service.PayrollSync
}

// New opens Postgres and Redis and builds the services on top of them.
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb, err := cache.OpenRedis(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	store := repository.NewStore(db)
	recorder := service.NewActivityRecorder(repository.NewActivityRepository(db))
	outstanding := cache.NewOutstandingCache(rdb, cfg.Business.CacheTTL)
	locker := cache.NewRunLocker(rdb)

	ledger := service.NewRepaymentLedger(store, recorder, outstanding, log)

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Redis:    rdb,
		Advances: service.NewAdvanceService(store, recorder, outstanding, cfg, log),
		Ledger:   ledger,
		Sync:     service.NewPayrollSync(store, ledger, recorder, outstanding, locker, cfg.Payroll.SyncLockTTL, log),
	}, nil
}

func OpenDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Log.WithError(err).Warn("closing redis")
	}
	if err := a.DB.Close(); err != nil {
		a.Log.WithError(err).Warn("closing database")
	}
}
