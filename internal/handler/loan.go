package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/segyhp/amortization-engine/internal/domain"
	"github.com/segyhp/amortization-engine/pkg/response"
	"github.com/shopspring/decimal"
)

// LoanService is what the HTTP layer needs from the loan service
type LoanService interface {
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []domain.Installment, error)
	GetSchedule(ctx context.Context, loanID string) (*domain.ScheduleResponse, error)
	GetOutstanding(ctx context.Context, loanID string) (decimal.Decimal, error)
	RecordPayment(ctx context.Context, loanID string, request *domain.MakePaymentRequest) (*domain.PaymentResponse, error)
	RefinanceLoan(ctx context.Context, loanID string, request *domain.RefinanceRequest) (*domain.ScheduleResponse, error)
	GetLedger(ctx context.Context, loanID string) (*domain.LedgerResponse, error)
	OverdueReport(ctx context.Context, loanID string, asOf time.Time) (*domain.OverdueResponse, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	now       func() time.Time
}

func NewLoanHandler(service LoanService) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
		now:       time.Now,
	}
}

// CreateLoan handles POST /loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if !h.decode(w, r, &request) {
		return
	}

	loan, schedule, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Created(w, domain.CreateLoanResponse{Loan: loan, Schedule: schedule})
}

// GetSchedule handles GET /loans/{loanId}/schedule
func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.GetSchedule(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, schedule)
}

// GetOutstanding handles GET /loans/{loanId}/outstanding
func (h *LoanHandler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	outstanding, err := h.service.GetOutstanding(r.Context(), loanID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, domain.OutstandingResponse{LoanID: loanID, Outstanding: outstanding})
}

// MakePayment handles POST /loans/{loanId}/payments
func (h *LoanHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	var request domain.MakePaymentRequest
	if !h.decode(w, r, &request) {
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), mux.Vars(r)["loanId"], &request)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Created(w, payment)
}

// Refinance handles POST /loans/{loanId}/refinance
func (h *LoanHandler) Refinance(w http.ResponseWriter, r *http.Request) {
	var request domain.RefinanceRequest
	if !h.decode(w, r, &request) {
		return
	}

	schedule, err := h.service.RefinanceLoan(r.Context(), mux.Vars(r)["loanId"], &request)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, schedule)
}

// GetLedger handles GET /loans/{loanId}/ledger
func (h *LoanHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.service.GetLedger(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, ledger)
}

// GetOverdue handles GET /loans/{loanId}/overdue?as_of=2024-05-01
func (h *LoanHandler) GetOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := h.now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			response.BadRequest(w, "as_of must be a date in YYYY-MM-DD format", err)
			return
		}
		asOf = parsed
	}

	report, err := h.service.OverdueReport(r.Context(), mux.Vars(r)["loanId"], asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, report)
}

// decode reads and validates a JSON body, writing the 400 itself on failure
func (h *LoanHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON payload", err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return false
	}
	return true
}
