package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/amortization-engine/internal/amortization"
	"github.com/segyhp/amortization-engine/internal/domain"
	"github.com/segyhp/amortization-engine/internal/lock"
	"github.com/segyhp/amortization-engine/internal/metrics"
	"github.com/segyhp/amortization-engine/internal/repository"
	customError "github.com/segyhp/amortization-engine/pkg/errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type LoanService struct {
	loanRepo   repository.LoanRepository
	ledgerRepo repository.LedgerRepository
	cache      Cache
	locker     lock.Locker
	engine     *amortization.Engine
	metrics    *metrics.Metrics
	cacheTTL   time.Duration
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	ledgerRepo repository.LedgerRepository,
	cache Cache,
	locker lock.Locker,
	engine *amortization.Engine,
	m *metrics.Metrics,
	cacheTTL time.Duration,
) *LoanService {
	return &LoanService{
		loanRepo:   loanRepo,
		ledgerRepo: ledgerRepo,
		cache:      cache,
		locker:     locker,
		engine:     engine,
		metrics:    m,
		cacheTTL:   cacheTTL,
	}
}

// CreateLoan stores a new loan with its generated payment schedule
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []domain.Installment, error) {
	defer s.observe("create_loan", time.Now())

	existingLoan, err := s.loanRepo.GetByLoanID(ctx, request.LoanID)
	if err == nil && existingLoan != nil {
		return nil, nil, s.fail("create_loan", customError.WrapLoanAlreadyExists(request.LoanID))
	}
	if err != nil && !errors.Is(err, customError.ErrLoanNotFound) {
		return nil, nil, s.fail("create_loan", dbError(err))
	}

	params := domain.ScheduleParams{
		Principal:         request.Principal,
		AnnualRatePercent: request.AnnualRatePercent,
		TermMonths:        request.TermMonths,
		StartDate:         request.StartDate,
		MonthlyInsurance:  request.MonthlyInsurance,
	}
	installments, err := amortization.GenerateSchedule(params)
	if err != nil {
		return nil, nil, s.fail("create_loan", err)
	}

	now := time.Now()
	loan := &domain.Loan{
		ID:                uuid.New(),
		LoanID:            request.LoanID,
		Principal:         request.Principal,
		AnnualRatePercent: request.AnnualRatePercent,
		TermMonths:        request.TermMonths,
		MonthlyInsurance:  request.MonthlyInsurance,
		StartDate:         request.StartDate,
		Status:            domain.LoanStatusActive,
		Plan:              domain.NewPaymentPlan(installments),
		PlanVersion:       1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err = s.loanRepo.Create(ctx, loan); err != nil {
		return nil, nil, s.fail("create_loan", dbError(err))
	}

	s.metrics.LoansCreated.Inc()
	log.Info().
		Str("loan_id", loan.LoanID).
		Str("principal", loan.Principal.String()).
		Int("term_months", loan.TermMonths).
		Str("level_payment", installments[0].TotalPayment.String()).
		Msg("loan created")

	return loan, loan.Plan.Installments(), nil
}

// GetSchedule returns the loan's plan with its summary, served from cache when possible
func (s *LoanService) GetSchedule(ctx context.Context, loanID string) (*domain.ScheduleResponse, error) {
	key := scheduleCacheKey(loanID)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var schedule domain.ScheduleResponse
		if err = json.Unmarshal([]byte(cached), &schedule); err == nil {
			return &schedule, nil
		}
		log.Warn().Err(err).Str("loan_id", loanID).Msg("discarding unreadable cached schedule")
	} else if !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Str("loan_id", loanID).Msg("schedule cache unavailable")
	}

	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	// A write that committed after this read has already stored a newer
	// version, which SetIfNewer keeps.
	schedule := buildSchedule(loan)
	if payload, err := json.Marshal(schedule); err == nil {
		if _, err = s.cache.SetIfNewer(ctx, key, string(payload), loan.PlanVersion, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("loan_id", loanID).Msg("failed to cache schedule")
		}
	}

	return schedule, nil
}

// GetOutstanding returns the balance left after the last paid installment,
// or the principal when nothing has been paid yet
func (s *LoanService) GetOutstanding(ctx context.Context, loanID string) (decimal.Decimal, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return loan.Plan.Outstanding(loan.Principal), nil
}

// RecordPayment applies a payment under the loan lock and persists the new
// plan together with its ledger entries
func (s *LoanService) RecordPayment(ctx context.Context, loanID string, request *domain.MakePaymentRequest) (*domain.PaymentResponse, error) {
	defer s.observe("record_payment", time.Now())

	var response *domain.PaymentResponse
	err := s.withLoanLock(ctx, loanID, func() error {
		loan, err := s.getLoan(ctx, loanID)
		if err != nil {
			return err
		}

		plan, requests, err := s.engine.ApplyPayment(loan.Plan, domain.PaymentRequest{
			Loan:                *loan,
			TotalAmountPaid:     request.TotalAmountPaid,
			ExtraPrincipal:      request.ExtraPrincipal,
			PaymentDate:         request.PaymentDate,
			TargetPaymentNumber: request.PaymentNumber,
		})
		if err != nil {
			return err
		}

		entries := make([]*domain.LedgerEntry, 0, len(requests))
		for _, req := range requests {
			entries = append(entries, domain.NewLedgerEntry(loan.LoanID, req))
		}

		expectedVersion := loan.PlanVersion
		loan.Plan = plan
		if plan.IsSettled() {
			loan.Status = domain.LoanStatusClosed
		}

		if err = s.loanRepo.SavePlan(ctx, loan, expectedVersion, entries); err != nil {
			return dbError(err)
		}
		s.refreshCache(ctx, loan, buildSchedule(loan))

		response = &domain.PaymentResponse{
			LoanID:   loan.LoanID,
			Status:   loan.Status,
			Entries:  entries,
			Schedule: plan.Installments(),
		}

		s.metrics.PaymentsApplied.WithLabelValues(paymentKind(request)).Inc()
		event := log.Info().
			Str("loan_id", loan.LoanID).
			Str("amount", request.TotalAmountPaid.String()).
			Str("extra_principal", request.ExtraPrincipal.String()).
			Int("plan_version", loan.PlanVersion)
		if request.PaymentNumber != nil {
			event = event.Int("payment_number", *request.PaymentNumber)
		}
		event.Msg("payment recorded")
		return nil
	})
	if err != nil {
		return nil, s.fail("record_payment", err)
	}

	return response, nil
}

// RefinanceLoan replaces the unpaid part of the plan with a fresh schedule
// for the new terms
func (s *LoanService) RefinanceLoan(ctx context.Context, loanID string, request *domain.RefinanceRequest) (*domain.ScheduleResponse, error) {
	defer s.observe("refinance", time.Now())

	var response *domain.ScheduleResponse
	err := s.withLoanLock(ctx, loanID, func() error {
		loan, err := s.getLoan(ctx, loanID)
		if err != nil {
			return err
		}

		params := request.Params()
		plan, err := s.engine.Refinance(loan.Plan, params)
		if err != nil {
			return err
		}

		expectedVersion := loan.PlanVersion
		if len(loan.Plan.Paid()) == 0 {
			loan.Principal = params.Amount
		}
		loan.AnnualRatePercent = params.AnnualRatePercent
		loan.TermMonths = params.TermMonths
		loan.MonthlyInsurance = params.MonthlyInsurance
		loan.StartDate = params.StartDate
		loan.Status = domain.LoanStatusActive
		loan.Plan = plan

		if err = s.loanRepo.SavePlan(ctx, loan, expectedVersion, nil); err != nil {
			return dbError(err)
		}
		response = buildSchedule(loan)
		s.refreshCache(ctx, loan, response)

		s.metrics.Refinances.Inc()
		log.Info().
			Str("loan_id", loan.LoanID).
			Str("amount", params.Amount.String()).
			Int("term_months", params.TermMonths).
			Int("series", plan.CurrentSeries()).
			Msg("loan refinanced")
		return nil
	})
	if err != nil {
		return nil, s.fail("refinance", err)
	}

	return response, nil
}

// GetLedger returns every ledger entry recorded for the loan
func (s *LoanService) GetLedger(ctx context.Context, loanID string) (*domain.LedgerResponse, error) {
	if _, err := s.getLoan(ctx, loanID); err != nil {
		return nil, err
	}

	entries, err := s.ledgerRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, dbError(err)
	}

	return &domain.LedgerResponse{LoanID: loanID, Entries: entries}, nil
}

// OverdueReport lists pending installments due before asOf
func (s *LoanService) OverdueReport(ctx context.Context, loanID string, asOf time.Time) (*domain.OverdueResponse, error) {
	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	return &domain.OverdueResponse{
		LoanID:  loan.LoanID,
		AsOf:    asOf,
		Overdue: loan.Plan.Overdue(asOf),
	}, nil
}

// SweepResult summarizes one overdue sweep over all active loans
type SweepResult struct {
	LoansScanned        int
	OverdueLoans        int
	OverdueInstallments int
}

// SweepOverdue walks every active loan, counts overdue installments and
// publishes the totals as gauges
func (s *LoanService) SweepOverdue(ctx context.Context, asOf time.Time) (SweepResult, error) {
	defer s.observe("overdue_sweep", time.Now())

	loans, err := s.loanRepo.ListActive(ctx)
	if err != nil {
		return SweepResult{}, s.fail("overdue_sweep", dbError(err))
	}

	var result SweepResult
	for _, loan := range loans {
		result.LoansScanned++
		overdue := loan.Plan.Overdue(asOf)
		if len(overdue) == 0 {
			continue
		}

		result.OverdueLoans++
		result.OverdueInstallments += len(overdue)
		log.Info().
			Str("loan_id", loan.LoanID).
			Int("overdue_installments", len(overdue)).
			Int("oldest_payment_number", overdue[0].PaymentNumber).
			Time("oldest_due_date", overdue[0].DueDate).
			Msg("loan has overdue installments")
	}

	s.metrics.OverdueLoans.Set(float64(result.OverdueLoans))
	s.metrics.OverdueInstallments.Set(float64(result.OverdueInstallments))

	return result, nil
}

func (s *LoanService) getLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, dbError(err)
	}
	return loan, nil
}

// withLoanLock runs fn while holding the loan's lease
func (s *LoanService) withLoanLock(ctx context.Context, loanID string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, "loan:"+loanID)
	if errors.Is(err, lock.ErrNotAcquired) {
		return customError.WrapLoanLocked(loanID)
	}
	if err != nil {
		return customError.WrapCacheError(err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("loan_id", loanID).Msg("failed to release loan lock")
		}
	}()

	return fn()
}

// refreshCache writes the schedule of a freshly saved plan through to the
// cache, dropping the entry when that fails.
func (s *LoanService) refreshCache(ctx context.Context, loan *domain.Loan, schedule *domain.ScheduleResponse) {
	key := scheduleCacheKey(loan.LoanID)
	payload, err := json.Marshal(schedule)
	if err == nil {
		if _, err = s.cache.SetIfNewer(ctx, key, string(payload), loan.PlanVersion, s.cacheTTL); err == nil {
			return
		}
	}
	log.Warn().Err(err).Str("loan_id", loan.LoanID).Int("plan_version", loan.PlanVersion).Msg("failed to refresh cached schedule")

	if err = s.cache.Del(ctx, key); err != nil {
		log.Warn().Err(err).Str("loan_id", loan.LoanID).Msg("failed to invalidate cached schedule")
	}
}

func (s *LoanService) observe(operation string, start time.Time) {
	s.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *LoanService) fail(operation string, err error) error {
	code := customError.Code(err)
	if code == "" {
		code = "INTERNAL"
	}
	s.metrics.OperationErrors.WithLabelValues(operation, code).Inc()
	log.Debug().Err(err).Str("operation", operation).Str("code", code).Msg("loan operation failed")
	return err
}

func buildSchedule(loan *domain.Loan) *domain.ScheduleResponse {
	return &domain.ScheduleResponse{
		LoanID:   loan.LoanID,
		Summary:  loan.Plan.Summarize(loan.Principal),
		Schedule: loan.Plan.Installments(),
	}
}

// dbError keeps business errors from the repository and wraps everything else
func dbError(err error) error {
	var businessErr *customError.BusinessError
	if errors.As(err, &businessErr) {
		return err
	}
	return customError.WrapDatabaseError(err)
}

func paymentKind(request *domain.MakePaymentRequest) string {
	switch {
	case request.PaymentNumber == nil:
		return "unscheduled"
	case request.ExtraPrincipal.IsPositive():
		return "extra_principal"
	default:
		return "scheduled"
	}
}
