package amortization

import (
	"fmt"
	"time"

	"github.com/segyhp/amortization-engine/internal/domain"
	customError "github.com/segyhp/amortization-engine/pkg/errors"
	"github.com/segyhp/amortization-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// ApplyPayment settles req against plan and returns the replacement plan with
// the ledger entries the payment produces.
//
// Cash is allocated interest-first: the interest and insurance scheduled on the
// target installment are covered before anything reaches principal, and a
// shortfall simply leaves the principal part empty. Extra principal shortens the
// loan: the tail after the target is regenerated with the same level payment
// starting from the reduced balance.
func (e *Engine) ApplyPayment(plan domain.PaymentPlan, req domain.PaymentRequest) (domain.PaymentPlan, []domain.LedgerEntryRequest, error) {
	if err := validatePaymentRequest(req); err != nil {
		return plan, nil, err
	}
	if err := plan.Validate(); err != nil {
		return plan, nil, customError.WrapInvalidPaymentPlan(err)
	}

	totalReceived := req.TotalAmountPaid.Add(req.ExtraPrincipal)

	// Ad-hoc payment: nothing to split against, the caller books it by hand.
	if req.TargetPaymentNumber == nil {
		entry := domain.LedgerEntryRequest{
			Amount:      totalReceived,
			Kind:        domain.LedgerEntryUnsplit,
			Date:        req.PaymentDate,
			Description: fmt.Sprintf("Loan %s unscheduled payment", req.Loan.LoanID),
		}
		return plan, []domain.LedgerEntryRequest{entry}, nil
	}

	number := *req.TargetPaymentNumber
	target, idx, ok := plan.Find(number)
	if !ok {
		return plan, nil, customError.WrapUnresolvableInstallment(number)
	}
	if target.IsPaid() {
		return plan, nil, customError.WrapInstallmentAlreadyPaid(number)
	}

	installments := plan.Installments()
	if e.opts.Settlement == SettlementStrict {
		for _, earlier := range installments[:idx] {
			if !earlier.IsPaid() {
				return plan, nil, customError.WrapOutOfOrderSettlement(number, earlier.PaymentNumber)
			}
		}
	}

	entries := splitPayment(req.Loan.LoanID, target, totalReceived, req.PaymentDate)

	var next []domain.Installment
	if req.ExtraPrincipal.IsPositive() {
		reamortized, err := e.reamortize(installments, idx, req)
		if err != nil {
			return plan, nil, err
		}
		next = reamortized
	} else {
		installments[idx] = target.MarkPaid(req.TotalAmountPaid, req.PaymentDate, decimal.Zero)
		next = installments
	}

	updated := domain.NewPaymentPlan(next)
	if err := updated.Validate(); err != nil {
		return plan, nil, customError.WrapInvalidPaymentPlan(fmt.Errorf("after payment of installment #%d: %w", number, err))
	}

	return updated, entries, nil
}

func validatePaymentRequest(req domain.PaymentRequest) error {
	switch {
	case req.TotalAmountPaid.IsNegative():
		return customError.WrapInvalidPaymentRequest("amount paid cannot be negative")
	case req.ExtraPrincipal.IsNegative():
		return customError.WrapInvalidPaymentRequest("extra principal cannot be negative")
	case !req.TotalAmountPaid.Add(req.ExtraPrincipal).IsPositive():
		return customError.WrapInvalidPaymentRequest("payment amount must be greater than zero")
	case !isWholeCents(req.TotalAmountPaid) || !isWholeCents(req.ExtraPrincipal):
		return customError.WrapInvalidPaymentRequest("amounts cannot be finer than cents")
	case req.PaymentDate.IsZero():
		return customError.WrapInvalidPaymentRequest("payment date is required")
	case req.TargetPaymentNumber != nil && *req.TargetPaymentNumber < 1:
		return customError.WrapInvalidPaymentRequest("payment number must be at least 1")
	}
	return nil
}

func isWholeCents(amount decimal.Decimal) bool {
	return amount.Equal(utils.RoundMoney(amount))
}

// splitPayment allocates totalReceived to the target's financial cost first.
// The entries always add up to totalReceived, so a shortfall caps the
// INTEREST_AND_INSURANCE entry at the amount received instead of booking the
// full financial cost.
func splitPayment(loanID string, target domain.Installment, totalReceived decimal.Decimal, date time.Time) []domain.LedgerEntryRequest {
	number := target.PaymentNumber
	financialCost := decimal.Min(target.FinancialCost(), totalReceived)
	capitalPart := decimal.Max(decimal.Zero, totalReceived.Sub(target.FinancialCost()))

	costBooked := financialCost.GreaterThan(utils.Tolerance)
	capitalBooked := capitalPart.GreaterThan(utils.Tolerance)

	switch {
	case costBooked && capitalBooked:
	case costBooked:
		financialCost = totalReceived
	case capitalBooked:
		capitalPart = totalReceived
	default:
		return []domain.LedgerEntryRequest{{
			Amount:               totalReceived,
			Kind:                 domain.LedgerEntryUnsplit,
			Date:                 date,
			Description:          fmt.Sprintf("Loan %s installment #%d payment", loanID, number),
			RelatedPaymentNumber: &number,
		}}
	}

	entries := make([]domain.LedgerEntryRequest, 0, 2)
	if costBooked {
		entries = append(entries, domain.LedgerEntryRequest{
			Amount:               financialCost,
			Kind:                 domain.LedgerEntryInterestAndInsurance,
			Date:                 date,
			Description:          fmt.Sprintf("Loan %s installment #%d interest and insurance", loanID, number),
			RelatedPaymentNumber: &number,
		})
	}
	if capitalBooked {
		entries = append(entries, domain.LedgerEntryRequest{
			Amount:               capitalPart,
			Kind:                 domain.LedgerEntryPrincipal,
			Date:                 date,
			Description:          fmt.Sprintf("Loan %s installment #%d principal", loanID, number),
			RelatedPaymentNumber: &number,
		})
	}
	return entries
}

// reamortize settles everything up to installments[idx] and rebuilds the tail
// from the balance left after the extra principal.
func (e *Engine) reamortize(installments []domain.Installment, idx int, req domain.PaymentRequest) ([]domain.Installment, error) {
	target := installments[idx]

	// Regenerating the tail would discard paid history after the target.
	for _, later := range installments[idx+1:] {
		if later.IsPaid() {
			return nil, customError.WrapOutOfOrderSettlement(target.PaymentNumber, later.PaymentNumber)
		}
	}

	settled := make([]domain.Installment, 0, len(installments))
	for _, earlier := range installments[:idx] {
		// Backfill assumes earlier installments were settled at their scheduled amount.
		settled = append(settled, earlier.MarkPaid(earlier.TotalPayment, req.PaymentDate, decimal.Zero))
	}

	paidTarget := target.MarkPaid(req.TotalAmountPaid, req.PaymentDate, req.ExtraPrincipal)
	newPrincipalBase := target.RemainingBalance.Sub(req.ExtraPrincipal)

	if newPrincipalBase.LessThanOrEqual(utils.Tolerance) {
		paidTarget.RemainingBalance = decimal.Zero
		return append(settled, paidTarget), nil
	}

	paidTarget.RemainingBalance = newPrincipalBase
	tail, err := e.regenerateTail(req.Loan, target, newPrincipalBase)
	if err != nil {
		return nil, err
	}

	settled = append(settled, paidTarget)
	return append(settled, tail...), nil
}

// regenerateTail amortizes balance with the anchor's level payment and monthly
// rate, numbering and dating installments after the anchor.
func (e *Engine) regenerateTail(loan domain.Loan, anchor domain.Installment, balance decimal.Decimal) ([]domain.Installment, error) {
	rate := utils.MonthlyRate(loan.AnnualRatePercent)
	payment := anchor.Principal.Add(anchor.Interest)
	insurance := anchor.Insurance

	anchorDay := anchor.DueDate.Day()
	if !loan.StartDate.IsZero() {
		anchorDay = loan.StartDate.Day()
	}

	tail := make([]domain.Installment, 0)
	for k := 1; balance.GreaterThan(utils.Tolerance); k++ {
		if k > e.opts.MaxReamortizationMonths {
			return nil, customError.WrapAmortizationDivergence(payment.String(), balance.String(), e.opts.MaxReamortizationMonths)
		}

		interest := utils.RoundMoney(balance.Mul(rate))
		principal := payment.Sub(interest)
		if !principal.IsPositive() {
			return nil, customError.WrapAmortizationDivergence(payment.String(), balance.String(), e.opts.MaxReamortizationMonths)
		}
		if principal.GreaterThan(balance) {
			principal = balance
		}

		balance = balance.Sub(principal)
		if balance.LessThanOrEqual(utils.Tolerance) {
			// fold the last cent into this installment
			principal = principal.Add(balance)
			balance = decimal.Zero
		}

		tail = append(tail, domain.Installment{
			Series:             anchor.Series,
			PaymentNumber:      anchor.PaymentNumber + k,
			DueDate:            utils.AddMonthsOnDay(anchor.DueDate, k, anchorDay),
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

	return tail, nil
}
