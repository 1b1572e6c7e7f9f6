package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive = "active"
	LoanStatusClosed = "closed"
)

// Loan represents a loan entity together with its current payment plan
type Loan struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	LoanID            string          `json:"loan_id" db:"loan_id"`
	Principal         decimal.Decimal `json:"principal" db:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent" db:"annual_rate_percent"`
	TermMonths        int             `json:"term_months" db:"term_months"`
	MonthlyInsurance  decimal.Decimal `json:"monthly_insurance" db:"monthly_insurance"`
	StartDate         time.Time       `json:"start_date" db:"start_date"`
	Status            string          `json:"status" db:"status"`
	Plan              PaymentPlan     `json:"-" db:"plan"`
	PlanVersion       int             `json:"plan_version" db:"plan_version"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ScheduleParams returns the loan's terms as schedule generation input
func (l Loan) ScheduleParams() ScheduleParams {
	return ScheduleParams{
		Principal:         l.Principal,
		AnnualRatePercent: l.AnnualRatePercent,
		TermMonths:        l.TermMonths,
		StartDate:         l.StartDate,
		MonthlyInsurance:  l.MonthlyInsurance,
	}
}

// ScheduleParams holds the inputs of schedule generation
type ScheduleParams struct {
	Principal         decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TermMonths        int
	StartDate         time.Time
	MonthlyInsurance  decimal.Decimal
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	LoanID            string          `json:"loan_id" validate:"required"`
	Principal         decimal.Decimal `json:"principal" validate:"decimal_gt=0"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent" validate:"decimal_gte=0"`
	TermMonths        int             `json:"term_months" validate:"required,gt=0"`
	MonthlyInsurance  decimal.Decimal `json:"monthly_insurance" validate:"decimal_gte=0"`
	StartDate         time.Time       `json:"start_date" validate:"required"`
}

type CreateLoanResponse struct {
	Loan     *Loan         `json:"loan"`
	Schedule []Installment `json:"schedule"`
}

type OutstandingResponse struct {
	LoanID      string          `json:"loan_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type OverdueResponse struct {
	LoanID  string        `json:"loan_id"`
	AsOf    time.Time     `json:"as_of"`
	Overdue []Installment `json:"overdue"`
}
