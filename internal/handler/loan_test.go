package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/amortization-engine/internal/domain"
	"github.com/segyhp/amortization-engine/internal/mocks"
	customError "github.com/segyhp/amortization-engine/pkg/errors"
	"github.com/segyhp/amortization-engine/pkg/response"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubDB struct{ err error }

func (s stubDB) PingContext(context.Context) error { return s.err }

type stubRedis struct{ err error }

func (s stubRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", s.err)
}

func newTestRouter(service *mocks.MockLoanService) http.Handler {
	loanHandler := NewLoanHandler(service)
	loanHandler.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	healthHandler := NewHealthHandler(stubDB{}, stubRedis{}, time.Second)
	return NewRouter(loanHandler, healthHandler, "/metrics", nil)
}

func doRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLoanHandler_CreateLoan(t *testing.T) {
	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	validRequest := domain.CreateLoanRequest{
		LoanID:            "loan123",
		Principal:         decimal.NewFromInt(12000),
		AnnualRatePercent: decimal.NewFromInt(12),
		TermMonths:        12,
		MonthlyInsurance:  decimal.Zero,
		StartDate:         startDate,
	}

	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*mocks.MockLoanService)
		expectedStatus int
		expectedBody   string
		checkResponse  func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "successful loan creation",
			requestBody: validRequest,
			setupMock: func(mockService *mocks.MockLoanService) {
				loan := &domain.Loan{
					ID:                uuid.New(),
					LoanID:            "loan123",
					Principal:         decimal.NewFromInt(12000),
					AnnualRatePercent: decimal.NewFromInt(12),
					TermMonths:        12,
					StartDate:         startDate,
					Status:            domain.LoanStatusActive,
					PlanVersion:       1,
				}
				schedule := []domain.Installment{{
					PaymentNumber:    1,
					DueDate:          startDate.AddDate(0, 1, 0),
					Principal:        decimal.RequireFromString("946.19"),
					Interest:         decimal.NewFromInt(120),
					TotalPayment:     decimal.RequireFromString("1066.19"),
					RemainingBalance: decimal.RequireFromString("11053.81"),
					Status:           domain.InstallmentStatusPending,
				}}
				mockService.On("CreateLoan", mock.Anything, mock.MatchedBy(func(req *domain.CreateLoanRequest) bool {
					return req.LoanID == "loan123" &&
						req.Principal.Equal(decimal.NewFromInt(12000)) &&
						req.TermMonths == 12 &&
						req.StartDate.Equal(startDate)
				})).Return(loan, schedule, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				var wrapperResponse struct {
					Success bool                      `json:"success"`
					Data    domain.CreateLoanResponse `json:"data"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapperResponse))

				assert.True(t, wrapperResponse.Success)
				require.NotNil(t, wrapperResponse.Data.Loan)
				assert.Equal(t, "loan123", wrapperResponse.Data.Loan.LoanID)
				require.Len(t, wrapperResponse.Data.Schedule, 1)
				assert.True(t, wrapperResponse.Data.Schedule[0].TotalPayment.Equal(decimal.RequireFromString("1066.19")))
			},
		},
		{
			name:           "invalid JSON payload",
			requestBody:    "invalid json",
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Invalid JSON payload",
		},
		{
			name: "validation error - missing loan ID",
			requestBody: func() domain.CreateLoanRequest {
				r := validRequest
				r.LoanID = ""
				return r
			}(),
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name: "validation error - zero principal",
			requestBody: func() domain.CreateLoanRequest {
				r := validRequest
				r.Principal = decimal.Zero
				return r
			}(),
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name: "validation error - negative interest rate",
			requestBody: func() domain.CreateLoanRequest {
				r := validRequest
				r.AnnualRatePercent = decimal.RequireFromString("-0.5")
				return r
			}(),
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name: "validation error - zero term",
			requestBody: func() domain.CreateLoanRequest {
				r := validRequest
				r.TermMonths = 0
				return r
			}(),
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name:        "loan already exists",
			requestBody: validRequest,
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("CreateLoan", mock.Anything, mock.Anything).
					Return(nil, nil, customError.WrapLoanAlreadyExists("loan123")).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   customError.ErrCodeLoanAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := mocks.NewMockLoanService()
			tt.setupMock(mockService)

			w := doRequest(newTestRouter(mockService), http.MethodPost, "/api/v1/loans", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, w)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestLoanHandler_MakePayment(t *testing.T) {
	paymentDate := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*mocks.MockLoanService)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "scheduled payment",
			requestBody: map[string]interface{}{
				"total_amount_paid": "1066.19",
				"payment_date":      paymentDate,
				"payment_number":    1,
			},
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("RecordPayment", mock.Anything, "loan123", mock.MatchedBy(func(req *domain.MakePaymentRequest) bool {
					return req.TotalAmountPaid.Equal(decimal.RequireFromString("1066.19")) &&
						req.ExtraPrincipal.IsZero() &&
						req.PaymentNumber != nil && *req.PaymentNumber == 1
				})).Return(&domain.PaymentResponse{LoanID: "loan123", Status: domain.LoanStatusActive}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "negative extra principal",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
				"extra_principal":   "-5",
				"payment_date":      paymentDate,
			},
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing payment date",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
			},
			setupMock:      func(mockService *mocks.MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown installment",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
				"payment_date":      paymentDate,
				"payment_number":    40,
			},
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("RecordPayment", mock.Anything, "loan123", mock.Anything).
					Return(nil, customError.WrapUnresolvableInstallment(40)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   customError.ErrCodeUnresolvableInstallment,
		},
		{
			name: "installment already paid",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
				"payment_date":      paymentDate,
				"payment_number":    1,
			},
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("RecordPayment", mock.Anything, "loan123", mock.Anything).
					Return(nil, customError.WrapInstallmentAlreadyPaid(1)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   customError.ErrCodeInstallmentAlreadyPaid,
		},
		{
			name: "loan locked",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
				"payment_date":      paymentDate,
			},
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("RecordPayment", mock.Anything, "loan123", mock.Anything).
					Return(nil, customError.WrapLoanLocked("loan123")).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   customError.ErrCodeLoanLocked,
		},
		{
			name: "re-amortization diverges",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
				"extra_principal":   "10",
				"payment_date":      paymentDate,
				"payment_number":    1,
			},
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("RecordPayment", mock.Anything, "loan123", mock.Anything).
					Return(nil, customError.WrapAmortizationDivergence("100", "1050", 360)).Once()
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   customError.ErrCodeAmortizationDivergence,
		},
		{
			name: "unexpected failure",
			requestBody: map[string]interface{}{
				"total_amount_paid": "100",
				"payment_date":      paymentDate,
			},
			setupMock: func(mockService *mocks.MockLoanService) {
				mockService.On("RecordPayment", mock.Anything, "loan123", mock.Anything).
					Return(nil, customError.WrapDatabaseError(errors.New("connection reset"))).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   customError.ErrCodeDatabaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := mocks.NewMockLoanService()
			tt.setupMock(mockService)

			w := doRequest(newTestRouter(mockService), http.MethodPost, "/api/v1/loans/loan123/payments", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				body := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, body.Code)
				assert.NotContains(t, body.Error, "connection reset")
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestLoanHandler_Refinance(t *testing.T) {
	mockService := mocks.NewMockLoanService()
	mockService.On("RefinanceLoan", mock.Anything, "loan123", mock.MatchedBy(func(req *domain.RefinanceRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(5000)) && req.TermMonths == 24
	})).Return(&domain.ScheduleResponse{LoanID: "loan123"}, nil).Once()

	w := doRequest(newTestRouter(mockService), http.MethodPost, "/api/v1/loans/loan123/refinance", map[string]interface{}{
		"amount":              "5000",
		"annual_rate_percent": "6",
		"term_months":         24,
		"monthly_insurance":   "0",
		"start_date":          time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)

	// amount must be positive before it reaches the service
	w = doRequest(newTestRouter(mocks.NewMockLoanService()), http.MethodPost, "/api/v1/loans/loan123/refinance", map[string]interface{}{
		"amount":      "0",
		"term_months": 24,
		"start_date":  time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoanHandler_Reads(t *testing.T) {
	t.Run("schedule", func(t *testing.T) {
		mockService := mocks.NewMockLoanService()
		mockService.On("GetSchedule", mock.Anything, "loan123").
			Return(&domain.ScheduleResponse{LoanID: "loan123", Summary: domain.PlanSummary{PendingCount: 12}}, nil).Once()

		w := doRequest(newTestRouter(mockService), http.MethodGet, "/api/v1/loans/loan123/schedule", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"pending_count":12`)
	})

	t.Run("outstanding", func(t *testing.T) {
		mockService := mocks.NewMockLoanService()
		mockService.On("GetOutstanding", mock.Anything, "loan123").
			Return(decimal.RequireFromString("11053.81"), nil).Once()

		w := doRequest(newTestRouter(mockService), http.MethodGet, "/api/v1/loans/loan123/outstanding", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"outstanding":"11053.81"`)
	})

	t.Run("outstanding for unknown loan", func(t *testing.T) {
		mockService := mocks.NewMockLoanService()
		mockService.On("GetOutstanding", mock.Anything, "nope").
			Return(decimal.Zero, customError.WrapLoanNotFound("nope")).Once()

		w := doRequest(newTestRouter(mockService), http.MethodGet, "/api/v1/loans/nope/outstanding", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, customError.ErrCodeLoanNotFound, decodeError(t, w).Code)
	})

	t.Run("ledger", func(t *testing.T) {
		mockService := mocks.NewMockLoanService()
		mockService.On("GetLedger", mock.Anything, "loan123").
			Return(&domain.LedgerResponse{LoanID: "loan123", Entries: []*domain.LedgerEntry{}}, nil).Once()

		w := doRequest(newTestRouter(mockService), http.MethodGet, "/api/v1/loans/loan123/ledger", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLoanHandler_GetOverdue(t *testing.T) {
	t.Run("defaults to now", func(t *testing.T) {
		mockService := mocks.NewMockLoanService()
		now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		mockService.On("OverdueReport", mock.Anything, "loan123", now).
			Return(&domain.OverdueResponse{LoanID: "loan123", AsOf: now}, nil).Once()

		w := doRequest(newTestRouter(mockService), http.MethodGet, "/api/v1/loans/loan123/overdue", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("explicit date", func(t *testing.T) {
		mockService := mocks.NewMockLoanService()
		asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		mockService.On("OverdueReport", mock.Anything, "loan123", asOf).
			Return(&domain.OverdueResponse{LoanID: "loan123", AsOf: asOf}, nil).Once()

		w := doRequest(newTestRouter(mockService), http.MethodGet, "/api/v1/loans/loan123/overdue?as_of=2024-03-15", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("malformed date", func(t *testing.T) {
		w := doRequest(newTestRouter(mocks.NewMockLoanService()), http.MethodGet, "/api/v1/loans/loan123/overdue?as_of=15/03/2024", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		w := doRequest(newTestRouter(mocks.NewMockLoanService()), http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready", func(t *testing.T) {
		w := doRequest(newTestRouter(mocks.NewMockLoanService()), http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"redis":"ok"`)
	})

	t.Run("redis down", func(t *testing.T) {
		health := NewHealthHandler(stubDB{}, stubRedis{err: errors.New("dial tcp: refused")}, time.Second)
		w := httptest.NewRecorder()
		health.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "dial tcp: refused")
	})
}
