package amortization

import (
	"errors"
	"testing"
	"time"

	"github.com/segyhp/amortization-engine/internal/domain"
	customError "github.com/segyhp/amortization-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var startDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func standardLoan() domain.Loan {
	return domain.Loan{
		LoanID:            "LOAN123",
		Principal:         decimal.NewFromInt(12000),
		AnnualRatePercent: decimal.NewFromInt(12),
		TermMonths:        12,
		MonthlyInsurance:  decimal.Zero,
		StartDate:         startDate,
	}
}

func standardPlan(t *testing.T) (domain.Loan, domain.PaymentPlan) {
	t.Helper()
	loan := standardLoan()
	installments, err := GenerateSchedule(loan.ScheduleParams())
	require.NoError(t, err)
	return loan, domain.NewPaymentPlan(installments)
}

// assertPlanInvariants checks contiguity, monotonic balance and closure
func assertPlanInvariants(t *testing.T, plan domain.PaymentPlan) {
	t.Helper()
	require.NoError(t, plan.Validate())

	installments := plan.Installments()
	require.NotEmpty(t, installments)
	for i, inst := range installments {
		if i > 0 && inst.Series == installments[i-1].Series {
			assert.Equal(t, installments[i-1].PaymentNumber+1, inst.PaymentNumber)
			assert.True(t, inst.RemainingBalance.LessThanOrEqual(installments[i-1].RemainingBalance),
				"balance increases at #%d", inst.PaymentNumber)
		}
	}
	last := installments[len(installments)-1]
	assert.True(t, last.RemainingBalance.LessThanOrEqual(dec("0.01")),
		"final balance %s", last.RemainingBalance)
}

func TestGenerateSchedule_StandardAnnuity(t *testing.T) {
	loan := standardLoan()

	installments, err := GenerateSchedule(loan.ScheduleParams())
	require.NoError(t, err)
	require.Len(t, installments, 12)

	level := dec("1066.19")
	for _, inst := range installments[:11] {
		assert.True(t, inst.TotalPayment.Equal(level), "installment #%d total %s", inst.PaymentNumber, inst.TotalPayment)
		assert.Equal(t, domain.InstallmentStatusPending, inst.Status)
	}

	last := installments[11]
	assert.True(t, last.TotalPayment.Sub(level).Abs().LessThan(dec("0.10")), "final total %s", last.TotalPayment)
	assert.True(t, last.RemainingBalance.IsZero())

	first := installments[0]
	assert.True(t, first.Interest.Equal(dec("120")))
	assert.True(t, first.Principal.Equal(dec("946.19")))
	assert.True(t, first.RemainingBalance.Equal(dec("11053.81")))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), first.DueDate)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), last.DueDate)

	assertPlanInvariants(t, domain.NewPaymentPlan(installments))
}

func TestGenerateSchedule_ZeroInterest(t *testing.T) {
	installments, err := GenerateSchedule(domain.ScheduleParams{
		Principal:         decimal.NewFromInt(1200),
		AnnualRatePercent: decimal.Zero,
		TermMonths:        12,
		StartDate:         startDate,
		MonthlyInsurance:  decimal.Zero,
	})
	require.NoError(t, err)
	require.Len(t, installments, 12)

	for _, inst := range installments {
		assert.True(t, inst.Interest.IsZero())
		assert.True(t, inst.Principal.Equal(decimal.NewFromInt(100)))
	}
	assert.True(t, installments[11].RemainingBalance.IsZero())
}

func TestGenerateSchedule_InsuranceIsFlat(t *testing.T) {
	installments, err := GenerateSchedule(domain.ScheduleParams{
		Principal:         decimal.NewFromInt(1200),
		AnnualRatePercent: decimal.Zero,
		TermMonths:        12,
		StartDate:         startDate,
		MonthlyInsurance:  dec("15.50"),
	})
	require.NoError(t, err)

	for i, inst := range installments {
		assert.True(t, inst.Insurance.Equal(dec("15.5")))
		assert.True(t, inst.TotalPayment.Equal(dec("115.5")))
		expectedBalance := decimal.NewFromInt(int64(1200 - 100*(i+1)))
		assert.True(t, inst.RemainingBalance.Equal(expectedBalance))
	}
}

func TestGenerateSchedule_ResidueLandsOnLastInstallment(t *testing.T) {
	installments, err := GenerateSchedule(domain.ScheduleParams{
		Principal:         decimal.NewFromInt(1000),
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
		StartDate:         startDate,
		MonthlyInsurance:  decimal.Zero,
	})
	require.NoError(t, err)

	assert.True(t, installments[0].Principal.Equal(dec("333.33")))
	assert.True(t, installments[1].Principal.Equal(dec("333.33")))
	assert.True(t, installments[2].Principal.Equal(dec("333.34")))
	assert.True(t, installments[2].RemainingBalance.IsZero())
}

func TestGenerateSchedule_MonthEndDueDates(t *testing.T) {
	installments, err := GenerateSchedule(domain.ScheduleParams{
		Principal:         decimal.NewFromInt(3000),
		AnnualRatePercent: decimal.NewFromInt(6),
		TermMonths:        3,
		StartDate:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		MonthlyInsurance:  decimal.Zero,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), installments[0].DueDate)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), installments[1].DueDate)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), installments[2].DueDate)
}

func TestGenerateSchedule_BalanceClosure(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		term      int
		insurance string
	}{
		{"thirty year mortgage", "250000", "6.5", 360, "0"},
		{"car loan with insurance", "18500.75", "7.9", 60, "23.40"},
		{"short high rate", "999.99", "29.99", 6, "0"},
		{"single month", "500", "12", 1, "5"},
		{"tiny principal", "0.05", "10", 12, "0"},
		{"interest free long term", "10000", "0", 48, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installments, err := GenerateSchedule(domain.ScheduleParams{
				Principal:         dec(tt.principal),
				AnnualRatePercent: dec(tt.rate),
				TermMonths:        tt.term,
				StartDate:         startDate,
				MonthlyInsurance:  dec(tt.insurance),
			})
			require.NoError(t, err)
			require.Len(t, installments, tt.term)

			assertPlanInvariants(t, domain.NewPaymentPlan(installments))

			principalSum := decimal.Zero
			for _, inst := range installments {
				principalSum = principalSum.Add(inst.Principal)
			}
			assert.True(t, principalSum.Equal(dec(tt.principal)), "principal repaid %s", principalSum)
		})
	}
}

func TestGenerateSchedule_InvalidParameters(t *testing.T) {
	valid := standardLoan().ScheduleParams()

	tests := []struct {
		name   string
		mutate func(p *domain.ScheduleParams)
	}{
		{"zero term", func(p *domain.ScheduleParams) { p.TermMonths = 0 }},
		{"negative term", func(p *domain.ScheduleParams) { p.TermMonths = -3 }},
		{"zero principal", func(p *domain.ScheduleParams) { p.Principal = decimal.Zero }},
		{"negative principal", func(p *domain.ScheduleParams) { p.Principal = decimal.NewFromInt(-1) }},
		{"negative rate", func(p *domain.ScheduleParams) { p.AnnualRatePercent = dec("-0.5") }},
		{"negative insurance", func(p *domain.ScheduleParams) { p.MonthlyInsurance = dec("-1") }},
		{"missing start date", func(p *domain.ScheduleParams) { p.StartDate = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)

			installments, err := GenerateSchedule(params)
			assert.Nil(t, installments)
			assert.True(t, errors.Is(err, customError.ErrInvalidScheduleParameters))
			assert.Equal(t, customError.ErrCodeInvalidScheduleParameters, customError.Code(err))
		})
	}
}
