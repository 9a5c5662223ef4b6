package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitecrew/advance-engine/internal/app"
	"github.com/sitecrew/advance-engine/internal/config"
	"github.com/sitecrew/advance-engine/internal/handler"
	"github.com/sitecrew/advance-engine/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.Logging)

	a, err := app.New(cfg, logg)
	if err != nil {
		logg.WithError(err).Fatal("failed to initialize")
	}
	defer a.Close()

	advanceHandler := handler.NewAdvanceHandler(a.Advances, a.Ledger)
	payrollHandler := handler.NewPayrollHandler(a.Sync)
	healthHandler := handler.NewHealthHandler(a.DB, a.Redis, cfg.Health.Timeout, !cfg.IsProduction())

	router := handler.NewRouter(advanceHandler, payrollHandler, healthHandler, logg)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logg.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.WithError(err).Fatal("server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logg.WithError(err).Error("server forced to shutdown")
		return
	}

	logg.Info("server exited")
}
