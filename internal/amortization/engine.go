// Package amortization turns loan terms into payment plans and applies payments
// and refinances to them. Every operation is a pure function of its inputs: it
// never reads the clock, performs I/O or mutates the plan it was given. Callers
// must serialize ApplyPayment and Refinance per loan.
package amortization

import (
	"github.com/segyhp/amortization-engine/internal/domain"
)

// SettlementMode controls how a payment against a later installment treats
// earlier installments that are still pending.
type SettlementMode string

const (
	// SettlementRelaxed backfills earlier pending installments as paid when
	// extra principal re-amortizes the plan.
	SettlementRelaxed SettlementMode = "relaxed"
	// SettlementStrict rejects any payment while an earlier installment is pending.
	SettlementStrict SettlementMode = "strict"
)

// NumberingPolicy controls payment numbers of a refinanced tail.
type NumberingPolicy string

const (
	NumberingContinue NumberingPolicy = "continue"
	NumberingRestart  NumberingPolicy = "restart"
)

// DefaultMaxReamortizationMonths caps tail regeneration after extra principal.
const DefaultMaxReamortizationMonths = 360

// Options configure an Engine.
type Options struct {
	Settlement              SettlementMode
	Numbering               NumberingPolicy
	MaxReamortizationMonths int
}

// DefaultOptions returns relaxed settlement, continued numbering and a 360 month cap.
func DefaultOptions() Options {
	return Options{
		Settlement:              SettlementRelaxed,
		Numbering:               NumberingContinue,
		MaxReamortizationMonths: DefaultMaxReamortizationMonths,
	}
}

// Engine holds the policy knobs shared by payment processing and refinancing.
// It has no mutable state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine, filling unset options with their defaults
func NewEngine(opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.Settlement == "" {
		opts.Settlement = defaults.Settlement
	}
	if opts.Numbering == "" {
		opts.Numbering = defaults.Numbering
	}
	if opts.MaxReamortizationMonths <= 0 {
		opts.MaxReamortizationMonths = defaults.MaxReamortizationMonths
	}
	return &Engine{opts: opts}
}

// Options returns the engine configuration
func (e *Engine) Options() Options {
	return e.opts
}

var defaultEngine = NewEngine(DefaultOptions())

// ApplyPayment applies req to plan using the default options
func ApplyPayment(plan domain.PaymentPlan, req domain.PaymentRequest) (domain.PaymentPlan, []domain.LedgerEntryRequest, error) {
	return defaultEngine.ApplyPayment(plan, req)
}

// Refinance rebuilds plan for params using the default options
func Refinance(plan domain.PaymentPlan, params domain.RefinanceParams) (domain.PaymentPlan, error) {
	return defaultEngine.Refinance(plan, params)
}
