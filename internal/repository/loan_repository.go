package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/segyhp/amortization-engine/internal/domain"
	customError "github.com/segyhp/amortization-engine/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const loanColumns = `id, loan_id, principal, annual_rate_percent, term_months, monthly_insurance,
		start_date, status, plan, plan_version, created_at, updated_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (id, loan_id, principal, annual_rate_percent, term_months, monthly_insurance,
			start_date, status, plan, plan_version, created_at, updated_at)
		VALUES (:id, :loan_id, :principal, :annual_rate_percent, :term_months, :monthly_insurance,
			:start_date, :status, :plan, :plan_version, :created_at, :updated_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, loan)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return customError.WrapLoanAlreadyExists(loan.LoanID)
	}
	return err
}

func (r *loanRepository) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = $1`

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapLoanNotFound(loanID)
	}
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) SavePlan(ctx context.Context, loan *domain.Loan, expectedVersion int, entries []*domain.LedgerEntry) error {
	query := `
		UPDATE loans
		SET principal = $3, annual_rate_percent = $4, term_months = $5, monthly_insurance = $6,
			start_date = $7, status = $8, plan = $9, plan_version = plan_version + 1, updated_at = $10
		WHERE loan_id = $1 AND plan_version = $2
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		loan.LoanID,
		expectedVersion,
		loan.Principal,
		loan.AnnualRatePercent,
		loan.TermMonths,
		loan.MonthlyInsurance,
		loan.StartDate,
		loan.Status,
		loan.Plan,
		now,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return customError.WrapPlanVersionConflict(loan.LoanID, expectedVersion)
	}

	if err = insertLedgerEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	loan.PlanVersion = expectedVersion + 1
	loan.UpdatedAt = now
	return nil
}

func (r *loanRepository) ListActive(ctx context.Context) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 ORDER BY created_at`

	var loans []*domain.Loan
	if err := r.db.SelectContext(ctx, &loans, query, domain.LoanStatusActive); err != nil {
		return nil, err
	}

	return loans, nil
}
