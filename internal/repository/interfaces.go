package repository

import (
	"context"

	"github.com/segyhp/amortization-engine/internal/domain"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create stores a new loan together with its initial plan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByLoanID retrieves a loan by its loan ID
	GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error)

	// SavePlan replaces the loan's terms and plan and records entries in one
	// transaction. It fails with a version conflict when the stored plan
	// version is no longer expectedVersion; on success loan.PlanVersion is bumped.
	SavePlan(ctx context.Context, loan *domain.Loan, expectedVersion int, entries []*domain.LedgerEntry) error

	// ListActive returns every loan that still has pending installments
	ListActive(ctx context.Context) ([]*domain.Loan, error)
}

// LedgerRepository defines the interface for ledger entry reads
type LedgerRepository interface {
	// GetByLoanID retrieves all ledger entries of a loan, oldest first
	GetByLoanID(ctx context.Context, loanID string) ([]*domain.LedgerEntry, error)
}
