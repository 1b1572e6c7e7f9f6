package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every monetary amount is rounded to.
const MoneyPlaces = 2

// compoundPlaces bounds the precision of (1+r)^n while it is being accumulated.
const compoundPlaces = 18

var (
	// Tolerance is the smallest amount treated as money; anything at or below it counts as zero.
	Tolerance = decimal.New(1, -MoneyPlaces)

	one           = decimal.NewFromInt(1)
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
)

// RoundMoney rounds an amount to cents
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// IsNegligible reports whether amount is within the money tolerance of zero
func IsNegligible(amount decimal.Decimal) bool {
	return amount.Abs().LessThanOrEqual(Tolerance)
}

// MonthlyRate converts an annual percentage rate to a monthly fraction
// Formula: annualRatePercent / 100 / 12
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(hundred).Div(monthsPerYear)
}

// CalculateMonthlyPayment calculates the level principal+interest payment of an annuity
// Formula: P * r * (1+r)^n / ((1+r)^n - 1), or P / n when r is zero
func CalculateMonthlyPayment(principal decimal.Decimal, monthlyRate decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}

	if monthlyRate.IsZero() {
		return RoundMoney(principal.Div(decimal.NewFromInt(int64(months))))
	}

	factor := compound(monthlyRate, months)
	payment := principal.Mul(monthlyRate).Mul(factor).Div(factor.Sub(one))

	return RoundMoney(payment)
}

func compound(rate decimal.Decimal, periods int) decimal.Decimal {
	base := one.Add(rate)
	factor := one
	for i := 0; i < periods; i++ {
		factor = factor.Mul(base).Round(compoundPlaces)
	}
	return factor
}

// AddMonths advances t by the given number of calendar months.
// The day of month is clamped to the last day of the target month, so
// Jan 31 + 1 month is Feb 29 in a leap year and never rolls into March.
func AddMonths(t time.Time, months int) time.Time {
	return AddMonthsOnDay(t, months, t.Day())
}

// AddMonthsOnDay advances t by months and places the result on the given day,
// clamped to the length of the target month.
func AddMonthsOnDay(t time.Time, months int, day int) time.Time {
	year, month, _ := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()

	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}

	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// CalculateDueDate calculates the due date of an installment relative to the schedule start
// Installment 1 is due one month after the start date
func CalculateDueDate(startDate time.Time, paymentNumber int) time.Time {
	return AddMonths(startDate, paymentNumber)
}

// IsDateOverdue checks if a due date lies strictly before asOf
func IsDateOverdue(dueDate time.Time, asOf time.Time) bool {
	return asOf.After(dueDate)
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
