package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	customError "github.com/sitecrew/advance-engine/pkg/errors"
	"github.com/sitecrew/advance-engine/pkg/response"
)

type HealthHandler struct {
	db      *sqlx.DB
	redis   *redis.Client
	timeout time.Duration
	// verbose includes driver error text in failed checks.
	verbose bool
}

func NewHealthHandler(db *sqlx.DB, redis *redis.Client, timeout time.Duration, verbose bool) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		timeout: timeout,
		verbose: verbose,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health performs a basic health check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	response.Success(w, status)
}

// Ready performs readiness check including database and redis connectivity.
// A failed check answers 503 in the error envelope with every check listed
// under details.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.check(&status, "database", h.db.PingContext(ctx))
	h.check(&status, "redis", h.redis.Ping(ctx).Err())

	if status.Status == "error" {
		response.ErrorWithDetails(w, http.StatusServiceUnavailable, customError.ErrCodeDependencyDown, "service not ready", status)
		return
	}

	response.Success(w, status)
}

func (h *HealthHandler) check(status *HealthStatus, name string, err error) {
	if err == nil {
		status.Checks[name] = "ok"
		return
	}
	status.Status = "error"
	if h.verbose {
		status.Checks[name] = "failed: " + err.Error()
		return
	}
	status.Checks[name] = "failed"
}
