package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sitecrew/advance-engine/internal/domain"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
	"github.com/sitecrew/advance-engine/pkg/response"
	"github.com/sitecrew/advance-engine/pkg/utils"
)

type PayrollSyncService interface {
	Run(ctx context.Context, period domain.PayrollPeriod, actor string) (*domain.SyncResult, error)
}

type PayrollHandler struct {
	sync      PayrollSyncService
	validator *validator.Validate
}

func NewPayrollHandler(sync PayrollSyncService) *PayrollHandler {
	return &PayrollHandler{
		sync:      sync,
		validator: newValidator(),
	}
}

// RunSync handles POST /api/v1/payroll/sync. Per-deduction failures are part
// of the result body, not the status code.
func (h *PayrollHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	var request domain.PayrollSyncRequest
	if err := decodeAndValidate(r, h.validator, &request); err != nil {
		response.FromError(w, err)
		return
	}

	start, err := utils.ParseDate(request.PeriodStart)
	if err != nil {
		response.FromError(w, customError.NewValidationError("period_start must be YYYY-MM-DD", customError.ErrInvalidDate))
		return
	}
	end, err := utils.ParseDate(request.PeriodEnd)
	if err != nil {
		response.FromError(w, customError.NewValidationError("period_end must be YYYY-MM-DD", customError.ErrInvalidDate))
		return
	}

	result, err := h.sync.Run(r.Context(), domain.PayrollPeriod{Start: start, End: end}, request.Actor)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, result)
}
