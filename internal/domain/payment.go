package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryKind tells the bookkeeping side which account a movement belongs to
type LedgerEntryKind string

const (
	LedgerEntryInterestAndInsurance LedgerEntryKind = "INTEREST_AND_INSURANCE"
	LedgerEntryPrincipal            LedgerEntryKind = "PRINCIPAL"
	LedgerEntryUnsplit              LedgerEntryKind = "UNSPLIT"
)

// PaymentRequest is one incoming payment against a loan.
// ExtraPrincipal is paid on top of TotalAmountPaid.
type PaymentRequest struct {
	Loan                Loan
	TotalAmountPaid     decimal.Decimal
	ExtraPrincipal      decimal.Decimal
	PaymentDate         time.Time
	TargetPaymentNumber *int
}

// LedgerEntryRequest describes money moved by a payment; the caller records it
type LedgerEntryRequest struct {
	Amount               decimal.Decimal `json:"amount"`
	Kind                 LedgerEntryKind `json:"kind"`
	Date                 time.Time       `json:"date"`
	Description          string          `json:"description"`
	RelatedPaymentNumber *int            `json:"related_payment_number,omitempty"`
}

// RefinanceParams holds the terms of the replacement schedule.
// Amount is the outstanding balance the caller wants financed.
type RefinanceParams struct {
	Amount            decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TermMonths        int
	MonthlyInsurance  decimal.Decimal
	StartDate         time.Time
}

// LedgerEntry is a recorded ledger entry request
type LedgerEntry struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	LoanID               string          `json:"loan_id" db:"loan_id"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	Kind                 LedgerEntryKind `json:"kind" db:"kind"`
	EntryDate            time.Time       `json:"entry_date" db:"entry_date"`
	Description          string          `json:"description" db:"description"`
	RelatedPaymentNumber *int            `json:"related_payment_number,omitempty" db:"related_payment_number"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// NewLedgerEntry turns a ledger entry request into a record for loanID
func NewLedgerEntry(loanID string, req LedgerEntryRequest) *LedgerEntry {
	return &LedgerEntry{
		ID:                   uuid.New(),
		LoanID:               loanID,
		Amount:               req.Amount,
		Kind:                 req.Kind,
		EntryDate:            req.Date,
		Description:          req.Description,
		RelatedPaymentNumber: req.RelatedPaymentNumber,
	}
}

// DTOs for requests and responses

type MakePaymentRequest struct {
	TotalAmountPaid decimal.Decimal `json:"total_amount_paid" validate:"decimal_gte=0"`
	ExtraPrincipal  decimal.Decimal `json:"extra_principal" validate:"decimal_gte=0"`
	PaymentDate     time.Time       `json:"payment_date" validate:"required"`
	PaymentNumber   *int            `json:"payment_number,omitempty" validate:"omitempty,gt=0"`
}

type PaymentResponse struct {
	LoanID   string         `json:"loan_id"`
	Status   string         `json:"status"`
	Entries  []*LedgerEntry `json:"entries"`
	Schedule []Installment  `json:"schedule"`
}

type RefinanceRequest struct {
	Amount            decimal.Decimal `json:"amount" validate:"decimal_gt=0"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent" validate:"decimal_gte=0"`
	TermMonths        int             `json:"term_months" validate:"required,gt=0"`
	MonthlyInsurance  decimal.Decimal `json:"monthly_insurance" validate:"decimal_gte=0"`
	StartDate         time.Time       `json:"start_date" validate:"required"`
}

// Params converts the request into refinance parameters
func (r RefinanceRequest) Params() RefinanceParams {
	return RefinanceParams{
		Amount:            r.Amount,
		AnnualRatePercent: r.AnnualRatePercent,
		TermMonths:        r.TermMonths,
		MonthlyInsurance:  r.MonthlyInsurance,
		StartDate:         r.StartDate,
	}
}

type LedgerResponse struct {
	LoanID  string         `json:"loan_id"`
	Entries []*LedgerEntry `json:"entries"`
}
