package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the settlement state of one installment. PAID is terminal.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "PENDING"
	InstallmentStatusPaid    InstallmentStatus = "PAID"
)

var balanceTolerance = decimal.New(1, -2)

// Installment represents one scheduled cash-flow event of a payment plan
type Installment struct {
	Series             int               `json:"series"` // bumped on every refinance
	PaymentNumber      int               `json:"payment_number"`
	DueDate            time.Time         `json:"due_date"`
	Principal          decimal.Decimal   `json:"principal"`
	Interest           decimal.Decimal   `json:"interest"`
	Insurance          decimal.Decimal   `json:"insurance"`
	TotalPayment       decimal.Decimal   `json:"total_payment"`
	RemainingBalance   decimal.Decimal   `json:"remaining_balance"`
	Status             InstallmentStatus `json:"status"`
	PaidAmount         decimal.Decimal   `json:"paid_amount"`
	PaidDate           *time.Time        `json:"paid_date,omitempty"`
	ExtraPrincipalPaid decimal.Decimal   `json:"extra_principal_paid"`
}

// IsPaid reports whether the installment has been settled
func (i Installment) IsPaid() bool {
	return i.Status == InstallmentStatusPaid
}

// FinancialCost is the interest plus insurance charged by the installment
func (i Installment) FinancialCost() decimal.Decimal {
	return i.Interest.Add(i.Insurance)
}

// MarkPaid returns a copy of the installment settled for amount on date.
// Paid installments are returned unchanged.
func (i Installment) MarkPaid(amount decimal.Decimal, date time.Time, extra decimal.Decimal) Installment {
	if i.IsPaid() {
		return i
	}
	paidDate := date
	i.Status = InstallmentStatusPaid
	i.PaidAmount = amount
	i.PaidDate = &paidDate
	i.ExtraPrincipalPaid = extra
	return i
}

// PaymentPlan is the ordered installment sequence owned by a loan.
// It is an immutable value: every operation that changes it returns a new plan.
type PaymentPlan struct {
	installments []Installment
}

// NewPaymentPlan builds a plan from installments, sorted by series and payment number
func NewPaymentPlan(installments []Installment) PaymentPlan {
	cp := make([]Installment, len(installments))
	copy(cp, installments)
	sort.SliceStable(cp, func(a, b int) bool {
		if cp[a].Series != cp[b].Series {
			return cp[a].Series < cp[b].Series
		}
		return cp[a].PaymentNumber < cp[b].PaymentNumber
	})
	return PaymentPlan{installments: cp}
}

// Installments returns a copy of the plan's installments
func (p PaymentPlan) Installments() []Installment {
	cp := make([]Installment, len(p.installments))
	copy(cp, p.installments)
	return cp
}

// Len returns the number of installments
func (p PaymentPlan) Len() int {
	return len(p.installments)
}

// IsEmpty reports whether no schedule has been generated yet
func (p PaymentPlan) IsEmpty() bool {
	return len(p.installments) == 0
}

// Find returns the installment with the given payment number. When numbering
// restarted on refinance, the most recent series wins.
func (p PaymentPlan) Find(paymentNumber int) (Installment, int, bool) {
	for idx := len(p.installments) - 1; idx >= 0; idx-- {
		if p.installments[idx].PaymentNumber == paymentNumber {
			return p.installments[idx], idx, true
		}
	}
	return Installment{}, -1, false
}

// Paid returns the settled installments in plan order
func (p PaymentPlan) Paid() []Installment {
	return p.filter(InstallmentStatusPaid)
}

// Pending returns the unsettled installments in plan order
func (p PaymentPlan) Pending() []Installment {
	return p.filter(InstallmentStatusPending)
}

func (p PaymentPlan) filter(status InstallmentStatus) []Installment {
	out := make([]Installment, 0, len(p.installments))
	for _, inst := range p.installments {
		if inst.Status == status {
			out = append(out, inst)
		}
	}
	return out
}

// CurrentSeries returns the series of the latest installment batch
func (p PaymentPlan) CurrentSeries() int {
	if len(p.installments) == 0 {
		return 0
	}
	return p.installments[len(p.installments)-1].Series
}

// IsSettled reports whether a generated plan has no pending installments left
func (p PaymentPlan) IsSettled() bool {
	return len(p.installments) > 0 && len(p.Pending()) == 0
}

// NextDue returns the first pending installment
func (p PaymentPlan) NextDue() (Installment, bool) {
	for _, inst := range p.installments {
		if !inst.IsPaid() {
			return inst, true
		}
	}
	return Installment{}, false
}

// Outstanding returns the balance left after the last paid installment, or
// fallback when nothing has been paid yet.
func (p PaymentPlan) Outstanding(fallback decimal.Decimal) decimal.Decimal {
	paid := p.Paid()
	if len(paid) == 0 {
		return fallback
	}
	return paid[len(paid)-1].RemainingBalance
}

// Overdue returns pending installments due strictly before asOf
func (p PaymentPlan) Overdue(asOf time.Time) []Installment {
	out := make([]Installment, 0)
	for _, inst := range p.installments {
		if !inst.IsPaid() && asOf.After(inst.DueDate) {
			out = append(out, inst)
		}
	}
	return out
}

// Validate checks ordering, numbering, balance and status invariants
func (p PaymentPlan) Validate() error {
	for idx, inst := range p.installments {
		if inst.RemainingBalance.IsNegative() {
			return fmt.Errorf("installment #%d has negative remaining balance %s", inst.PaymentNumber, inst.RemainingBalance)
		}
		if !inst.TotalPayment.Equal(inst.Principal.Add(inst.Interest).Add(inst.Insurance)) {
			return fmt.Errorf("installment #%d total %s does not match its components", inst.PaymentNumber, inst.TotalPayment)
		}
		if inst.Status != InstallmentStatusPending && inst.Status != InstallmentStatusPaid {
			return fmt.Errorf("installment #%d has unknown status %q", inst.PaymentNumber, inst.Status)
		}
		if inst.IsPaid() && inst.PaidDate == nil {
			return fmt.Errorf("installment #%d is paid without a paid date", inst.PaymentNumber)
		}

		if idx == 0 {
			if inst.PaymentNumber != 1 {
				return fmt.Errorf("plan starts at installment #%d instead of #1", inst.PaymentNumber)
			}
			continue
		}

		prev := p.installments[idx-1]
		switch {
		case inst.Series == prev.Series:
			if inst.PaymentNumber != prev.PaymentNumber+1 {
				return fmt.Errorf("installment #%d does not follow #%d", inst.PaymentNumber, prev.PaymentNumber)
			}
			if inst.RemainingBalance.GreaterThan(prev.RemainingBalance) {
				return fmt.Errorf("remaining balance increases at installment #%d", inst.PaymentNumber)
			}
		case inst.Series > prev.Series:
			if inst.PaymentNumber != 1 && inst.PaymentNumber != prev.PaymentNumber+1 {
				return fmt.Errorf("series %d starts at installment #%d", inst.Series, inst.PaymentNumber)
			}
			// a new series may only finance what the previous one left open
			opening := inst.RemainingBalance.Add(inst.Principal)
			if opening.Sub(prev.RemainingBalance).GreaterThan(balanceTolerance) {
				return fmt.Errorf("series %d opens at %s above the previous balance %s", inst.Series, opening, prev.RemainingBalance)
			}
		default:
			return fmt.Errorf("installment #%d is out of series order", inst.PaymentNumber)
		}
	}

	if n := len(p.installments); n > 0 {
		last := p.installments[n-1]
		if last.RemainingBalance.GreaterThan(balanceTolerance) {
			return fmt.Errorf("final installment #%d leaves balance %s", last.PaymentNumber, last.RemainingBalance)
		}
	}

	return nil
}

// MarshalJSON encodes the plan as a plain installment array
func (p PaymentPlan) MarshalJSON() ([]byte, error) {
	if p.installments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.installments)
}

// UnmarshalJSON decodes a plain installment array
func (p *PaymentPlan) UnmarshalJSON(data []byte) error {
	var installments []Installment
	if err := json.Unmarshal(data, &installments); err != nil {
		return err
	}
	*p = NewPaymentPlan(installments)
	return nil
}

// Value stores the plan as a single JSON document
func (p PaymentPlan) Value() (driver.Value, error) {
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan loads the plan from a JSON column
func (p *PaymentPlan) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = PaymentPlan{}
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into PaymentPlan", src)
	}
}

// PlanSummary is a compact view of a plan's progress
type PlanSummary struct {
	PaidCount     int             `json:"paid_count"`
	PendingCount  int             `json:"pending_count"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	NextDue       *Installment    `json:"next_due,omitempty"`
}

// Summarize builds a PlanSummary; principal is the outstanding amount before any payment
func (p PaymentPlan) Summarize(principal decimal.Decimal) PlanSummary {
	summary := PlanSummary{
		PaidCount:     len(p.Paid()),
		PendingCount:  len(p.Pending()),
		Outstanding:   p.Outstanding(principal),
		TotalInterest: decimal.Zero,
	}
	for _, inst := range p.installments {
		summary.TotalInterest = summary.TotalInterest.Add(inst.Interest)
	}
	if next, ok := p.NextDue(); ok {
		summary.NextDue = &next
	}
	return summary
}

type ScheduleResponse struct {
	LoanID   string        `json:"loan_id"`
	Summary  PlanSummary   `json:"summary"`
	Schedule []Installment `json:"schedule"`
}
