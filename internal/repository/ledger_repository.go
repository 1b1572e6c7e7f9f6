package repository

import (
	"context"
	"time"

	"github.com/segyhp/amortization-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

type ledgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) GetByLoanID(ctx context.Context, loanID string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, loan_id, amount, kind, entry_date, description, related_payment_number, created_at
		FROM ledger_entries
		WHERE loan_id = $1
		ORDER BY created_at, id
	`

	entries := make([]*domain.LedgerEntry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, loanID); err != nil {
		return nil, err
	}

	return entries, nil
}

// insertLedgerEntries writes entries inside the caller's transaction
func insertLedgerEntries(ctx context.Context, tx *sqlx.Tx, entries []*domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, loan_id, amount, kind, entry_date, description, related_payment_number, created_at)
		VALUES (:id, :loan_id, :amount, :kind, :entry_date, :description, :related_payment_number, :created_at)
	`

	now := time.Now()
	for _, entry := range entries {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
			return err
		}
	}

	return nil
}
