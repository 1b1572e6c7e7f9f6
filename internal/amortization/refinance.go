package amortization

import (
	"fmt"

	"github.com/segyhp/amortization-engine/internal/domain"
	customError "github.com/segyhp/amortization-engine/pkg/errors"
	"github.com/segyhp/amortization-engine/pkg/utils"
)

// Refinance replaces everything that is not yet paid with a fresh schedule for
// params. Paid installments are kept untouched in front of the new tail.
//
// params.Amount is the balance to finance; the caller computes it (normally the
// remaining balance of the last paid installment) and may not exceed that
// balance. With no payment history the result is exactly GenerateSchedule over
// params and any positive amount is accepted.
func (e *Engine) Refinance(existing domain.PaymentPlan, params domain.RefinanceParams) (domain.PaymentPlan, error) {
	if !params.Amount.IsPositive() {
		return existing, customError.WrapRefinanceWithoutBasis(params.Amount.String())
	}

	schedule := domain.ScheduleParams{
		Principal:         params.Amount,
		AnnualRatePercent: params.AnnualRatePercent,
		TermMonths:        params.TermMonths,
		StartDate:         params.StartDate,
		MonthlyInsurance:  params.MonthlyInsurance,
	}
	if err := validateScheduleParams(schedule); err != nil {
		return existing, err
	}

	paid := existing.Paid()
	if len(paid) == 0 {
		return domain.NewPaymentPlan(generate(schedule, 0, 1)), nil
	}

	// Paid history has to be a prefix of the plan, otherwise dropping the
	// pending installments would leave holes in the numbering.
	installments := existing.Installments()
	for i, inst := range paid {
		if installments[i].Series != inst.Series || installments[i].PaymentNumber != inst.PaymentNumber {
			return existing, customError.WrapOutOfOrderSettlement(inst.PaymentNumber, installments[i].PaymentNumber)
		}
	}

	last := paid[len(paid)-1]
	if params.Amount.Sub(last.RemainingBalance).GreaterThan(utils.Tolerance) {
		return existing, customError.WrapInvalidScheduleParameters(fmt.Sprintf(
			"refinance amount %s exceeds outstanding balance %s", params.Amount, last.RemainingBalance))
	}

	firstNumber := 1
	if e.opts.Numbering == NumberingContinue {
		firstNumber = last.PaymentNumber + 1
	}

	fresh := generate(schedule, last.Series+1, firstNumber)
	plan := domain.NewPaymentPlan(append(paid, fresh...))
	if err := plan.Validate(); err != nil {
		return existing, customError.WrapInvalidPaymentPlan(fmt.Errorf("after refinance: %w", err))
	}

	return plan, nil
}
