package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/pkg/response"
)

func NewRouter(advances *AdvanceHandler, payroll *PayrollHandler, health *HealthHandler, log logrus.FieldLogger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(log))
	router.Use(response.CORSMiddleware)

	// Health check
	if health != nil {
		router.HandleFunc("/health", health.Health).Methods(http.MethodGet)
		router.HandleFunc("/health/ready", health.Ready).Methods(http.MethodGet)
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/advances", advances.RequestAdvance).Methods(http.MethodPost)
	api.HandleFunc("/advances", advances.ListAdvances).Methods(http.MethodGet)
	api.HandleFunc("/advances/{advanceId}", advances.GetAdvance).Methods(http.MethodGet)
	api.HandleFunc("/advances/{advanceId}/decision", advances.DecideAdvance).Methods(http.MethodPost)
	api.HandleFunc("/advances/{advanceId}/archive", advances.ArchiveAdvance).Methods(http.MethodPost)
	api.HandleFunc("/advances/{advanceId}/repayments", advances.RecordRepayment).Methods(http.MethodPost)
	api.HandleFunc("/advances/{advanceId}/repayments", advances.ListRepayments).Methods(http.MethodGet)
	api.HandleFunc("/workers/{workerId}/outstanding", advances.GetWorkerOutstanding).Methods(http.MethodGet)
	api.HandleFunc("/payroll/sync", payroll.RunSync).Methods(http.MethodPost)

	return router
}
