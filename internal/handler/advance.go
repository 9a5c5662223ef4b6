package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/sitecrew/advance-engine/internal/domain"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
	"github.com/sitecrew/advance-engine/pkg/response"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

type AdvanceService interface {
	RequestAdvance(ctx context.Context, request *domain.CreateAdvanceRequest) (*domain.CashAdvance, error)
	Decide(ctx context.Context, advanceID string, decision domain.Decision, actor string) (*domain.CashAdvance, error)
	Get(ctx context.Context, advanceID string) (*domain.CashAdvance, error)
	List(ctx context.Context, filter domain.AdvanceFilter) (*domain.AdvancePage, error)
	Archive(ctx context.Context, advanceID, actor string) error
	GetWorkerOutstanding(ctx context.Context, workerID string) (decimal.Decimal, error)
}

type RepaymentService interface {
	RecordRepayment(ctx context.Context, input domain.RepaymentInput) (*domain.Repayment, error)
	History(ctx context.Context, advanceID string) ([]*domain.Repayment, error)
}

type AdvanceHandler struct {
	advances   AdvanceService
	repayments RepaymentService
	validator  *validator.Validate
}

func NewAdvanceHandler(advances AdvanceService, repayments RepaymentService) *AdvanceHandler {
	return &AdvanceHandler{
		advances:   advances,
		repayments: repayments,
		validator:  newValidator(),
	}
}

// RequestAdvance handles POST /api/v1/advances
func (h *AdvanceHandler) RequestAdvance(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateAdvanceRequest
	if err := decodeAndValidate(r, h.validator, &request); err != nil {
		response.FromError(w, err)
		return
	}

	advance, err := h.advances.RequestAdvance(r.Context(), &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, domain.CreateAdvanceResponse{AdvanceID: advance.ID})
}

// ListAdvances handles GET /api/v1/advances
func (h *AdvanceHandler) ListAdvances(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAdvanceFilter(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	page, err := h.advances.List(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, page)
}

// GetAdvance handles GET /api/v1/advances/{advanceId}
func (h *AdvanceHandler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	advance, err := h.advances.Get(r.Context(), mux.Vars(r)["advanceId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, advance)
}

// DecideAdvance handles POST /api/v1/advances/{advanceId}/decision
func (h *AdvanceHandler) DecideAdvance(w http.ResponseWriter, r *http.Request) {
	var request domain.DecisionRequest
	if err := decodeAndValidate(r, h.validator, &request); err != nil {
		response.FromError(w, err)
		return
	}

	advance, err := h.advances.Decide(r.Context(), mux.Vars(r)["advanceId"], request.Decision, request.Actor)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, advance)
}

// ArchiveAdvance handles POST /api/v1/advances/{advanceId}/archive
func (h *AdvanceHandler) ArchiveAdvance(w http.ResponseWriter, r *http.Request) {
	var request domain.ArchiveRequest
	if err := decodeAndValidate(r, h.validator, &request); err != nil {
		response.FromError(w, err)
		return
	}

	if err := h.advances.Archive(r.Context(), mux.Vars(r)["advanceId"], request.Actor); err != nil {
		response.FromError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecordRepayment handles POST /api/v1/advances/{advanceId}/repayments
func (h *AdvanceHandler) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	var request domain.RecordRepaymentRequest
	if err := decodeAndValidate(r, h.validator, &request); err != nil {
		response.FromError(w, err)
		return
	}

	date, err := utils.ParseDate(request.RepaymentDate)
	if err != nil {
		response.FromError(w, customError.NewValidationError("repayment_date must be YYYY-MM-DD", customError.ErrInvalidDate))
		return
	}

	repayment, err := h.repayments.RecordRepayment(r.Context(), domain.RepaymentInput{
		AdvanceID: mux.Vars(r)["advanceId"],
		Amount:    request.Amount,
		Method:    request.PaymentMethod,
		Date:      date,
		Notes:     request.Notes,
		Actor:     request.Actor,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, repayment)
}

// ListRepayments handles GET /api/v1/advances/{advanceId}/repayments
func (h *AdvanceHandler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	advanceID := mux.Vars(r)["advanceId"]

	repayments, err := h.repayments.History(r.Context(), advanceID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, domain.RepaymentHistoryResponse{
		AdvanceID:  advanceID,
		Repayments: repayments,
	})
}

// GetWorkerOutstanding handles GET /api/v1/workers/{workerId}/outstanding
func (h *AdvanceHandler) GetWorkerOutstanding(w http.ResponseWriter, r *http.Request) {
	workerID := mux.Vars(r)["workerId"]

	outstanding, err := h.advances.GetWorkerOutstanding(r.Context(), workerID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, domain.OutstandingResponse{
		WorkerID:    workerID,
		Outstanding: outstanding,
	})
}

func parseAdvanceFilter(r *http.Request) (domain.AdvanceFilter, error) {
	q := r.URL.Query()
	filter := domain.AdvanceFilter{
		WorkerID: q.Get("worker_id"),
		Status:   domain.AdvanceStatus(q.Get("status")),
	}

	var err error
	if filter.From, err = optionalDate(q.Get("from"), "from"); err != nil {
		return filter, err
	}
	if filter.To, err = optionalDate(q.Get("to"), "to"); err != nil {
		return filter, err
	}
	if filter.To != nil {
		// inclusive of the whole "to" day
		end := filter.To.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}
	if filter.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = optionalInt(q.Get("page_size"), "page_size"); err != nil {
		return filter, err
	}

	return filter, nil
}

func optionalDate(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseDate(raw)
	if err != nil {
		return nil, customError.NewValidationError(name+" must be YYYY-MM-DD", customError.ErrInvalidDate)
	}
	return &t, nil
}

func optionalInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, customError.NewValidationError(name+" must be a non-negative integer", err)
	}
	return n, nil
}
