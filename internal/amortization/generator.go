package amortization

import (
	"github.com/segyhp/amortization-engine/internal/domain"
	customError "github.com/segyhp/amortization-engine/pkg/errors"
	"github.com/segyhp/amortization-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// GenerateSchedule builds a fresh plan of pending installments.
//
// The level payment (principal and interest, insurance excluded) is the annuity
// payment rounded to cents. Interest is charged on the cent-exact balance each
// month and the final installment absorbs the rounding residue, so the last
// remaining balance is exactly zero. Insurance is added flat to every installment.
func GenerateSchedule(params domain.ScheduleParams) ([]domain.Installment, error) {
	if err := validateScheduleParams(params); err != nil {
		return nil, err
	}
	return generate(params, 0, 1), nil
}

func validateScheduleParams(params domain.ScheduleParams) error {
	switch {
	case params.TermMonths <= 0:
		return customError.WrapInvalidScheduleParameters("term must be at least one month")
	case !params.Principal.IsPositive():
		return customError.WrapInvalidScheduleParameters("principal must be greater than zero")
	case params.AnnualRatePercent.IsNegative():
		return customError.WrapInvalidScheduleParameters("annual rate cannot be negative")
	case params.MonthlyInsurance.IsNegative():
		return customError.WrapInvalidScheduleParameters("monthly insurance cannot be negative")
	case params.StartDate.IsZero():
		return customError.WrapInvalidScheduleParameters("start date is required")
	}
	return nil
}

func generate(params domain.ScheduleParams, series int, firstNumber int) []domain.Installment {
	rate := utils.MonthlyRate(params.AnnualRatePercent)
	payment := utils.CalculateMonthlyPayment(params.Principal, rate, params.TermMonths)
	insurance := utils.RoundMoney(params.MonthlyInsurance)
	balance := utils.RoundMoney(params.Principal)

	installments := make([]domain.Installment, 0, params.TermMonths)
	for i := 1; i <= params.TermMonths; i++ {
		interest := utils.RoundMoney(balance.Mul(rate))
		principal := payment.Sub(interest)

		if i == params.TermMonths || principal.GreaterThan(balance) {
			principal = balance
		}
		if principal.IsNegative() {
			principal = decimal.Zero
		}

		balance = balance.Sub(principal)
		if balance.LessThan(utils.Tolerance) {
			balance = decimal.Zero
		}

		installments = append(installments, domain.Installment{
			Series:             series,
			PaymentNumber:      firstNumber + i - 1,
			DueDate:            utils.CalculateDueDate(params.StartDate, i),
			Principal:          principal,
			Interest:           interest,
			Insurance:          insurance,
			TotalPayment:       principal.Add(interest).Add(insurance),
			RemainingBalance:   balance,
			Status:             domain.InstallmentStatusPending,
			PaidAmount:         decimal.Zero,
			ExtraPrincipalPaid: decimal.Zero,
		})
	}

	return installments
}
