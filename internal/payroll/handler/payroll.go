package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/internal/payroll/service"
	"github.com/staffline/backoffice/pkg/auth"
	"github.com/staffline/backoffice/pkg/database"
	apperrors "github.com/staffline/backoffice/pkg/errors"
	"github.com/staffline/backoffice/pkg/httputil"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/permissions"
)

// Payroll is the part of the payroll service the HTTP surface drives
type Payroll interface {
	Generate(ctx context.Context, periodID uuid.UUID, opts service.GenerateOptions) (*domain.RunSummary, error)
	Submit(ctx context.Context, periodID uuid.UUID) (*domain.RunSummary, error)
	Settle(ctx context.Context, periodID uuid.UUID, reqs []service.SettleRequest) ([]domain.PaymentDetail, error)
	Finalize(ctx context.Context, periodID uuid.UUID, employeeIDs []uuid.UUID) ([]domain.PaymentDetail, error)
	Skip(ctx context.Context, periodID uuid.UUID) (*domain.PayPeriod, error)
	AmendAmountPaid(ctx context.Context, periodID, employeeID uuid.UUID, amount decimal.Decimal) (*domain.PaymentDetail, error)
	Period(ctx context.Context, periodID uuid.UUID) (*domain.PayPeriod, error)
	Details(ctx context.Context, periodID uuid.UUID) ([]domain.PaymentDetail, error)
	Lines(ctx context.Context, periodID, employeeID uuid.UUID) ([]domain.PayrollLine, error)
}

// PayrollHandler handles pay period endpoints
type PayrollHandler struct {
	service Payroll
	logger  *logger.Logger
}

// NewPayrollHandler creates a new payroll handler
func NewPayrollHandler(svc Payroll, log *logger.Logger) *PayrollHandler {
	return &PayrollHandler{
		service: svc,
		logger:  log.WithComponent("payroll-handler"),
	}
}

// Routes returns the pay period routes. Callers mount them behind the
// authenticator so permissions are available.
func (h *PayrollHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/periods/{id}", func(r chi.Router) {
		r.With(auth.RequirePermission(permissions.PayrollRead)).Get("/", h.GetPeriod)
		r.With(auth.RequirePermission(permissions.PayrollRead)).Get("/details", h.ListDetails)
		r.With(auth.RequirePermission(permissions.PayrollRead)).Get("/employees/{employeeId}/lines", h.ListLines)

		r.With(auth.RequirePermission(permissions.PayrollGenerate)).Post("/generate", h.Generate)
		r.With(auth.RequirePermission(permissions.PayrollSubmit)).Post("/submit", h.Submit)
		r.With(auth.RequirePermission(permissions.PayrollSettle)).Post("/settle", h.Settle)
		r.With(auth.RequirePermission(permissions.PayrollFinalize)).Post("/finalize", h.Finalize)
		r.With(auth.RequirePermission(permissions.PayrollSkip)).Post("/skip", h.Skip)
		r.With(auth.RequirePermission(permissions.PayrollAmend)).Put("/employees/{employeeId}/amount-paid", h.AmendAmountPaid)
	})

	return r
}

// EmployeesRequest restricts a run to some employees. Empty means all.
type EmployeesRequest struct {
	EmployeeIDs []uuid.UUID `json:"employee_ids" validate:"dive,required"`
}

// SettleRequest carries per-employee settlement input
type SettleRequest struct {
	Payments []service.SettleRequest `json:"payments" validate:"dive"`
}

// AmountPaidRequest is the body of an amount-paid amendment
type AmountPaidRequest struct {
	AmountPaid *decimal.Decimal `json:"amount_paid" validate:"required,gte=0"`
}

// Generate builds the draft payroll of a period
func (h *PayrollHandler) Generate(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req EmployeesRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	summary, err := h.service.Generate(r.Context(), periodID, service.GenerateOptions{EmployeeIDs: req.EmployeeIDs})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// Submit locks a drafted period and consumes its timesheet hours
func (h *PayrollHandler) Submit(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	summary, err := h.service.Submit(r.Context(), periodID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

// Settle nets expenses and records payments
func (h *PayrollHandler) Settle(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req SettleRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	details, err := h.service.Settle(r.Context(), periodID, req.Payments)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, details)
}

// Finalize locks settled payments
func (h *PayrollHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req EmployeesRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	details, err := h.service.Finalize(r.Context(), periodID, req.EmployeeIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, details)
}

// Skip marks a period as not run
func (h *PayrollHandler) Skip(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	period, err := h.service.Skip(r.Context(), periodID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, period)
}

// AmendAmountPaid overrides the amount paid to one employee
func (h *PayrollHandler) AmendAmountPaid(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	employeeID, err := httputil.URLParamUUID(r, "employeeId")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req AmountPaidRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	detail, err := h.service.AmendAmountPaid(r.Context(), periodID, employeeID, *req.AmountPaid)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}

// GetPeriod gets a pay period
func (h *PayrollHandler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	period, err := h.service.Period(r.Context(), periodID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, period)
}

// ListDetails lists a period's payment details
func (h *PayrollHandler) ListDetails(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	details, err := h.service.Details(r.Context(), periodID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, details)
}

// ListLines lists an employee's payroll lines with their day breakdown
func (h *PayrollHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	periodID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	employeeID, err := httputil.URLParamUUID(r, "employeeId")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lines, err := h.service.Lines(r.Context(), periodID, employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lines)
}

// fail maps service errors onto API errors
func (h *PayrollHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.Error(w, h.toAppError(r, err))
}

func (h *PayrollHandler) toAppError(r *http.Request, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.Wrap(err, "NOT_FOUND", err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.Unprocessable("INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return apperrors.BadRequest(err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		return apperrors.Conflict("payroll was changed concurrently, retry the request")
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}

	h.logger.WithRequestID(httputil.GetRequestID(r.Context())).
		WithUserID(httputil.GetUserID(r.Context())).
		Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg("payroll request failed")
	return apperrors.Internal("payroll transaction failed")
}
