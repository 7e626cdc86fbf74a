package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/internal/payroll/handler"
	"github.com/staffline/backoffice/internal/payroll/service"
	"github.com/staffline/backoffice/pkg/auth"
	"github.com/staffline/backoffice/pkg/config"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/permissions"
	"github.com/staffline/backoffice/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-long-enough-for-hs256"

// fakePayroll records calls and returns canned results
type fakePayroll struct {
	err error

	generated  service.GenerateOptions
	settled    []service.SettleRequest
	finalized  []uuid.UUID
	amended    decimal.Decimal
	lastPeriod uuid.UUID
}

func (f *fakePayroll) Generate(ctx context.Context, periodID uuid.UUID, opts service.GenerateOptions) (*domain.RunSummary, error) {
	f.lastPeriod, f.generated = periodID, opts
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RunSummary{Employees: 2}, nil
}

func (f *fakePayroll) Submit(ctx context.Context, periodID uuid.UUID) (*domain.RunSummary, error) {
	f.lastPeriod = periodID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RunSummary{Employees: 2, RaisedEntries: 10}, nil
}

func (f *fakePayroll) Settle(ctx context.Context, periodID uuid.UUID, reqs []service.SettleRequest) ([]domain.PaymentDetail, error) {
	f.lastPeriod, f.settled = periodID, reqs
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PaymentDetail{{PeriodID: periodID, State: domain.DetailSettled}}, nil
}

func (f *fakePayroll) Finalize(ctx context.Context, periodID uuid.UUID, employeeIDs []uuid.UUID) ([]domain.PaymentDetail, error) {
	f.lastPeriod, f.finalized = periodID, employeeIDs
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PaymentDetail{}, nil
}

func (f *fakePayroll) Skip(ctx context.Context, periodID uuid.UUID) (*domain.PayPeriod, error) {
	f.lastPeriod = periodID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PayPeriod{ID: periodID, Status: domain.PeriodSkipped}, nil
}

func (f *fakePayroll) AmendAmountPaid(ctx context.Context, periodID, employeeID uuid.UUID, amount decimal.Decimal) (*domain.PaymentDetail, error) {
	f.lastPeriod, f.amended = periodID, amount
	if f.err != nil {
		return nil, f.err
	}
	d := domain.NewDraftDetail(employeeID, periodID)
	d.AmountPaid = amount
	return d, nil
}

func (f *fakePayroll) Period(ctx context.Context, periodID uuid.UUID) (*domain.PayPeriod, error) {
	f.lastPeriod = periodID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PayPeriod{ID: periodID, Status: domain.PeriodDrafted}, nil
}

func (f *fakePayroll) Details(ctx context.Context, periodID uuid.UUID) ([]domain.PaymentDetail, error) {
	f.lastPeriod = periodID
	return nil, f.err
}

func (f *fakePayroll) Lines(ctx context.Context, periodID, employeeID uuid.UUID) ([]domain.PayrollLine, error) {
	f.lastPeriod = periodID
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PayrollLine{{EmployeeID: employeeID, PeriodID: periodID, Status: domain.LineComputed}}, nil
}

func newRouter(svc handler.Payroll) http.Handler {
	authn := auth.NewAuthenticator(&config.JWTConfig{Secret: testSecret, Issuer: "staffline"}, logger.Nop())
	r := chi.NewRouter()
	r.With(authn.Middleware).Mount("/api/v1/payroll", handler.NewPayrollHandler(svc, logger.Nop()).Routes())
	return r
}

func token(t *testing.T, perms ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			Issuer:    "staffline",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:        "payroll_admin",
		Permissions: perms,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestGenerate(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)
	periodID, emp := uuid.New(), uuid.New()

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPost, "/api/v1/payroll/periods/"+periodID.String()+"/generate",
			map[string]interface{}{"employee_ids": []string{emp.String()}}),
		token(t, permissions.PayrollGenerate),
	)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, periodID, svc.lastPeriod)
	assert.Equal(t, []uuid.UUID{emp}, svc.generated.EmployeeIDs)

	var body struct {
		Success bool              `json:"success"`
		Data    domain.RunSummary `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &body)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Data.Employees)
}

func TestGenerate_WithoutBodyRunsEveryone(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPost, "/api/v1/payroll/periods/"+uuid.NewString()+"/generate", nil),
		token(t, "payroll.*"),
	)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Empty(t, svc.generated.EmployeeIDs)
}

func TestGenerate_ChunkedEmptyBodyRunsEveryone(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPost, "/api/v1/payroll/periods/"+uuid.NewString()+"/generate", nil),
		token(t, permissions.PayrollGenerate),
	)
	req.Body = io.NopCloser(strings.NewReader(""))
	req.ContentLength = -1
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Empty(t, svc.generated.EmployeeIDs)
}

func TestPermissions(t *testing.T) {
	router := newRouter(&fakePayroll{})
	path := "/api/v1/payroll/periods/" + uuid.NewString() + "/finalize"

	t.Run("read only operator cannot finalize", func(t *testing.T) {
		req := testutil.WithBearerToken(testutil.NewHTTPRequest(http.MethodPost, path, nil), token(t, permissions.PayrollRead))
		rr := testutil.ExecuteRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, path, nil))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("finalize permission", func(t *testing.T) {
		req := testutil.WithBearerToken(testutil.NewHTTPRequest(http.MethodPost, path, nil), token(t, permissions.PayrollFinalize))
		rr := testutil.ExecuteRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

func TestSettle(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)
	emp := uuid.New()

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPost, "/api/v1/payroll/periods/"+uuid.NewString()+"/settle",
			map[string]interface{}{
				"payments": []map[string]interface{}{{"employee_id": emp.String(), "amount_paid": "1250.50"}},
			}),
		token(t, permissions.PayrollSettle),
	)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	require.Len(t, svc.settled, 1)
	assert.Equal(t, emp, svc.settled[0].EmployeeID)
	require.NotNil(t, svc.settled[0].AmountPaid)
	assert.True(t, decimal.RequireFromString("1250.50").Equal(*svc.settled[0].AmountPaid))
}

func TestSettle_RejectsNegativeAmount(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPost, "/api/v1/payroll/periods/"+uuid.NewString()+"/settle",
			map[string]interface{}{
				"payments": []map[string]interface{}{{"employee_id": uuid.NewString(), "amount_paid": "-5"}},
			}),
		token(t, permissions.PayrollSettle),
	)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
	assert.Nil(t, svc.settled)
}

func TestAmendAmountPaid(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)
	path := fmt.Sprintf("/api/v1/payroll/periods/%s/employees/%s/amount-paid", uuid.New(), uuid.New())

	req := testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPut, path, map[string]string{"amount_paid": "800"}),
		token(t, permissions.PayrollAmend),
	)
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.True(t, decimal.NewFromInt(800).Equal(svc.amended))

	req = testutil.WithBearerToken(
		testutil.NewHTTPRequest(http.MethodPut, path, map[string]string{}),
		token(t, permissions.PayrollAmend),
	)
	rr = testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("pay period x: %w", domain.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"invalid transition", fmt.Errorf("cannot submit: %w", domain.ErrInvalidTransition), http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{"invalid input", fmt.Errorf("duplicate employee: %w", domain.ErrInvalidInput), http.StatusBadRequest, "BAD_REQUEST"},
		{"concurrent", fmt.Errorf("%w: %w", domain.ErrTransactionFailed, domain.ErrConcurrentModification), http.StatusConflict, "CONFLICT"},
		{"serialization failure", fmt.Errorf("%w: %w", domain.ErrTransactionFailed, &pq.Error{Code: "40001"}), http.StatusConflict, "CONFLICT"},
		{"transaction failed", fmt.Errorf("%w: connection reset", domain.ErrTransactionFailed), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakePayroll{err: tt.err})

			req := testutil.WithBearerToken(
				testutil.NewHTTPRequest(http.MethodPost, "/api/v1/payroll/periods/"+uuid.NewString()+"/submit", nil),
				token(t, permissions.PayrollSubmit),
			)
			rr := testutil.ExecuteRequest(router, req)

			testutil.AssertStatus(t, rr, tt.status)
			testutil.AssertBodyContains(t, rr, tt.code)
		})
	}
}

func TestReads(t *testing.T) {
	svc := &fakePayroll{}
	router := newRouter(svc)
	periodID, emp := uuid.New(), uuid.New()
	base := "/api/v1/payroll/periods/" + periodID.String()

	for _, path := range []string{base, base + "/details", base + "/employees/" + emp.String() + "/lines"} {
		req := testutil.WithBearerToken(testutil.NewHTTPRequest(http.MethodGet, path, nil), token(t, permissions.PayrollRead))
		rr := testutil.ExecuteRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, periodID, svc.lastPeriod)
	}

	req := testutil.WithBearerToken(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/payroll/periods/not-a-uuid", nil), token(t, permissions.PayrollRead))
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
