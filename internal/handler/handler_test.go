package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sitecrew/advance-engine/internal/domain"
	"github.com/sitecrew/advance-engine/internal/logger"
	customError "github.com/sitecrew/advance-engine/pkg/errors"
)

type MockAdvanceService struct {
	mock.Mock
}

func (m *MockAdvanceService) RequestAdvance(ctx context.Context, request *domain.CreateAdvanceRequest) (*domain.CashAdvance, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashAdvance), args.Error(1)
}

func (m *MockAdvanceService) Decide(ctx context.Context, advanceID string, decision domain.Decision, actor string) (*domain.CashAdvance, error) {
	args := m.Called(ctx, advanceID, decision, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashAdvance), args.Error(1)
}

func (m *MockAdvanceService) Get(ctx context.Context, advanceID string) (*domain.CashAdvance, error) {
	args := m.Called(ctx, advanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashAdvance), args.Error(1)
}

func (m *MockAdvanceService) List(ctx context.Context, filter domain.AdvanceFilter) (*domain.AdvancePage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdvancePage), args.Error(1)
}

func (m *MockAdvanceService) Archive(ctx context.Context, advanceID, actor string) error {
	args := m.Called(ctx, advanceID, actor)
	return args.Error(0)
}

func (m *MockAdvanceService) GetWorkerOutstanding(ctx context.Context, workerID string) (decimal.Decimal, error) {
	args := m.Called(ctx, workerID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockRepaymentService struct {
	mock.Mock
}

func (m *MockRepaymentService) RecordRepayment(ctx context.Context, input domain.RepaymentInput) (*domain.Repayment, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Repayment), args.Error(1)
}

func (m *MockRepaymentService) History(ctx context.Context, advanceID string) ([]*domain.Repayment, error) {
	args := m.Called(ctx, advanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Repayment), args.Error(1)
}

type MockPayrollSyncService struct {
	mock.Mock
}

func (m *MockPayrollSyncService) Run(ctx context.Context, period domain.PayrollPeriod, actor string) (*domain.SyncResult, error) {
	args := m.Called(ctx, period, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncResult), args.Error(1)
}

type testServer struct {
	router     *mux.Router
	advances   *MockAdvanceService
	repayments *MockRepaymentService
	sync       *MockPayrollSyncService
}

func newTestServer() *testServer {
	advances := new(MockAdvanceService)
	repayments := new(MockRepaymentService)
	sync := new(MockPayrollSyncService)

	router := NewRouter(
		NewAdvanceHandler(advances, repayments),
		NewPayrollHandler(sync),
		nil,
		logger.Discard(),
	)

	return &testServer{router: router, advances: advances, repayments: repayments, sync: sync}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestRequestAdvance_Created(t *testing.T) {
	s := newTestServer()
	s.advances.On("RequestAdvance", mock.Anything, mock.MatchedBy(func(r *domain.CreateAdvanceRequest) bool {
		return r.WorkerID == "w-1" && r.Amount.Equal(decimal.RequireFromString("1500.50")) && r.Reason == "rent"
	})).Return(&domain.CashAdvance{ID: "adv-1"}, nil)

	rec := s.do(http.MethodPost, "/api/v1/advances", `{"worker_id":"w-1","amount":"1500.50","reason":"rent"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"advance_id":"adv-1"}`, string(env.Data))
	s.advances.AssertExpectations(t)
}

func TestRequestAdvance_BadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"worker_id":`},
		{name: "missing worker", body: `{"amount":100}`},
		{name: "zero amount", body: `{"worker_id":"w-1","amount":0}`},
		{name: "negative amount", body: `{"worker_id":"w-1","amount":"-5"}`},
		{name: "empty body", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()

			rec := s.do(http.MethodPost, "/api/v1/advances", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, customError.ErrCodeValidation, decode(t, rec).Code)
			s.advances.AssertNotCalled(t, "RequestAdvance", mock.Anything, mock.Anything)
		})
	}
}

func TestRequestAdvance_InactiveWorker(t *testing.T) {
	s := newTestServer()
	s.advances.On("RequestAdvance", mock.Anything, mock.Anything).Return(nil, customError.WrapWorkerInactive("w-1"))

	rec := s.do(http.MethodPost, "/api/v1/advances", `{"worker_id":"w-1","amount":100}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, customError.ErrCodeWorkerInactive, decode(t, rec).Code)
}

func TestGetAdvance(t *testing.T) {
	s := newTestServer()
	s.advances.On("Get", mock.Anything, "adv-1").Return(&domain.CashAdvance{
		ID:      "adv-1",
		Amount:  decimal.NewFromInt(1000),
		Balance: decimal.NewFromInt(1000),
		Status:  domain.AdvanceStatusPending,
	}, nil)
	s.advances.On("Get", mock.Anything, "missing").Return(nil, customError.WrapAdvanceNotFound("missing"))

	rec := s.do(http.MethodGet, "/api/v1/advances/adv-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var advance domain.CashAdvance
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &advance))
	assert.Equal(t, domain.AdvanceStatusPending, advance.Status)

	rec = s.do(http.MethodGet, "/api/v1/advances/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, customError.ErrCodeAdvanceNotFound, decode(t, rec).Code)
}

func TestListAdvances_ParsesFilter(t *testing.T) {
	s := newTestServer()
	s.advances.On("List", mock.Anything, mock.MatchedBy(func(f domain.AdvanceFilter) bool {
		return f.WorkerID == "w-1" &&
			f.Status == domain.AdvanceStatusRepaying &&
			f.From != nil && f.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) &&
			f.To != nil && f.To.Day() == 31 && f.To.Hour() == 23 &&
			f.Page == 2 && f.PageSize == 10
	})).Return(&domain.AdvancePage{Items: []*domain.CashAdvance{}, Total: 0, Page: 2, PageSize: 10}, nil)

	rec := s.do(http.MethodGet, "/api/v1/advances?worker_id=w-1&status=repaying&from=2025-03-01&to=2025-03-31&page=2&page_size=10", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	s.advances.AssertExpectations(t)
}

func TestListAdvances_BadQuery(t *testing.T) {
	for _, query := range []string{"from=03/01/2025", "to=yesterday", "page=abc", "page_size=-1", "page=99999999999999999999"} {
		t.Run(query, func(t *testing.T) {
			s := newTestServer()

			rec := s.do(http.MethodGet, "/api/v1/advances?"+query, "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			s.advances.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func TestDecideAdvance(t *testing.T) {
	s := newTestServer()
	s.advances.On("Decide", mock.Anything, "adv-1", domain.DecisionApprove, "admin").
		Return(&domain.CashAdvance{ID: "adv-1", Status: domain.AdvanceStatusApproved}, nil)
	s.advances.On("Decide", mock.Anything, "adv-2", domain.DecisionReject, "admin").
		Return(nil, customError.WrapInvalidTransition("adv-2", "approved", "rejected"))

	rec := s.do(http.MethodPost, "/api/v1/advances/adv-1/decision", `{"decision":"approve","actor":"admin"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/advances/adv-2/decision", `{"decision":"reject","actor":"admin"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, customError.ErrCodeInvalidState, decode(t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/advances/adv-1/decision", `{"decision":"maybe","actor":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveAdvance(t *testing.T) {
	s := newTestServer()
	s.advances.On("Archive", mock.Anything, "adv-1", "admin").Return(nil)

	rec := s.do(http.MethodPost, "/api/v1/advances/adv-1/archive", `{"actor":"admin"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	s.advances.AssertExpectations(t)
}

func TestRecordRepayment(t *testing.T) {
	s := newTestServer()
	s.repayments.On("RecordRepayment", mock.Anything, mock.MatchedBy(func(in domain.RepaymentInput) bool {
		return in.AdvanceID == "adv-1" &&
			in.Amount.Equal(decimal.NewFromInt(2000)) &&
			in.Method == domain.PaymentMethodCash &&
			in.Date.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)) &&
			in.Actor == "cashier"
	})).Return(&domain.Repayment{ID: "rep-1", AdvanceID: "adv-1"}, nil)

	rec := s.do(http.MethodPost, "/api/v1/advances/adv-1/repayments",
		`{"amount":2000,"payment_method":"cash","repayment_date":"2025-03-05","notes":"site office","actor":"cashier"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	s.repayments.AssertExpectations(t)
}

func TestRecordRepayment_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "unknown method",
			body:       `{"amount":10,"payment_method":"barter","repayment_date":"2025-03-05","actor":"c"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad date",
			body:       `{"amount":10,"payment_method":"cash","repayment_date":"05/03/2025","actor":"c"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "exceeds balance",
			body:       `{"amount":1500,"payment_method":"cash","repayment_date":"2025-03-05","actor":"c"}`,
			serviceErr: customError.WrapAmountExceedsBalance(decimal.NewFromInt(1500), decimal.NewFromInt(1000)),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "advance pending",
			body:       `{"amount":10,"payment_method":"cash","repayment_date":"2025-03-05","actor":"c"}`,
			serviceErr: customError.WrapRepaymentNotAllowed("adv-1", "pending"),
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			if tt.serviceErr != nil {
				s.repayments.On("RecordRepayment", mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			}

			rec := s.do(http.MethodPost, "/api/v1/advances/adv-1/repayments", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.serviceErr == nil {
				s.repayments.AssertNotCalled(t, "RecordRepayment", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestListRepayments(t *testing.T) {
	s := newTestServer()
	s.repayments.On("History", mock.Anything, "adv-1").Return([]*domain.Repayment{
		{ID: "rep-1", AdvanceID: "adv-1", Amount: decimal.NewFromInt(100)},
	}, nil)

	rec := s.do(http.MethodGet, "/api/v1/advances/adv-1/repayments", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var history domain.RepaymentHistoryResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &history))
	assert.Equal(t, "adv-1", history.AdvanceID)
	require.Len(t, history.Repayments, 1)
	assert.Equal(t, "rep-1", history.Repayments[0].ID)
}

func TestGetWorkerOutstanding(t *testing.T) {
	s := newTestServer()
	s.advances.On("GetWorkerOutstanding", mock.Anything, "w-1").Return(decimal.RequireFromString("1250.50"), nil)

	rec := s.do(http.MethodGet, "/api/v1/workers/w-1/outstanding", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var out domain.OutstandingResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &out))
	assert.Equal(t, "w-1", out.WorkerID)
	assert.Equal(t, "1250.50", out.Outstanding.StringFixed(2))
}

func TestRunSync(t *testing.T) {
	s := newTestServer()
	period := domain.PayrollPeriod{
		Start: time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
	s.sync.On("Run", mock.Anything, period, "payroll-admin").Return(&domain.SyncResult{
		Applied: []*domain.Repayment{{ID: "rep-1"}},
		Skipped: []domain.SkippedDeduction{{DeductionID: "ded-2", WorkerID: "w-2", Reason: "no outstanding advance for worker"}},
		Failed:  []domain.SyncFailure{{DeductionID: "ded-3", Message: "database operation failed"}},
	}, nil)

	rec := s.do(http.MethodPost, "/api/v1/payroll/sync", `{"period_start":"2025-03-08","period_end":"2025-03-14","actor":"payroll-admin"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Applied []map[string]interface{} `json:"applied"`
		Skipped []map[string]interface{} `json:"skipped"`
		Failed  []map[string]interface{} `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &result))
	assert.Len(t, result.Applied, 1)
	assert.Equal(t, "no outstanding advance for worker", result.Skipped[0]["reason"])
	assert.Equal(t, "database operation failed", result.Failed[0]["error"])
}

func TestRunSync_AlreadyRunning(t *testing.T) {
	s := newTestServer()
	s.sync.On("Run", mock.Anything, mock.Anything, "system").
		Return(nil, customError.WrapSyncAlreadyRunning("2025-03-08..2025-03-14"))

	rec := s.do(http.MethodPost, "/api/v1/payroll/sync", `{"period_start":"2025-03-08","period_end":"2025-03-14","actor":"system"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, customError.ErrCodeSyncAlreadyRunning, decode(t, rec).Code)
}

func TestRunSync_BadPeriod(t *testing.T) {
	s := newTestServer()

	rec := s.do(http.MethodPost, "/api/v1/payroll/sync", `{"period_start":"2025-13-01","period_end":"2025-03-14","actor":"system"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	s.sync.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func setupHealth(t *testing.T, verbose bool) (*HealthHandler, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	rawDB, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewHealthHandler(db, rdb, time.Second, verbose), dbMock, mr
}

type readinessBody struct {
	Success bool         `json:"success"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details HealthStatus `json:"details"`
}

func TestHealthHandler(t *testing.T) {
	h, dbMock, mr := setupHealth(t, true)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	dbMock.ExpectPing()
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	mr.Close()
	dbMock.ExpectPing()
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readinessBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, customError.ErrCodeDependencyDown, body.Code)
	assert.Equal(t, "service not ready", body.Message)
	assert.Equal(t, "error", body.Details.Status)
	assert.Equal(t, "ok", body.Details.Checks["database"])
	assert.True(t, strings.HasPrefix(body.Details.Checks["redis"], "failed: "), body.Details.Checks["redis"])

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestHealthHandler_ReadyHidesErrorsWhenNotVerbose(t *testing.T) {
	h, dbMock, _ := setupHealth(t, false)
	dbMock.ExpectPing().WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	var body readinessBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, customError.ErrCodeDependencyDown, body.Code)
	assert.Equal(t, "failed", body.Details.Checks["database"])
	assert.Equal(t, "ok", body.Details.Checks["redis"])
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
