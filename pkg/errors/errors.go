package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrLoanNotFound              = errors.New("loan not found")
	ErrLoanAlreadyExists         = errors.New("loan already exists")
	ErrInvalidScheduleParameters = errors.New("invalid schedule parameters")
	ErrUnresolvableInstallment   = errors.New("installment not found in payment plan")
	ErrInstallmentAlreadyPaid    = errors.New("installment is already paid")
	ErrInvalidPaymentRequest     = errors.New("invalid payment request")
	ErrOutOfOrderSettlement      = errors.New("installments must be settled in order")
	ErrAmortizationDivergence    = errors.New("payment never retires the outstanding balance")
	ErrRefinanceWithoutBasis     = errors.New("refinance amount must be positive")
	ErrInvalidPaymentPlan        = errors.New("payment plan violates its invariants")
	ErrPlanVersionConflict       = errors.New("payment plan was modified concurrently")
	ErrLoanLocked                = errors.New("loan is locked by another operation")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeLoanNotFound              = "LOAN_NOT_FOUND"
	ErrCodeLoanAlreadyExists         = "LOAN_ALREADY_EXISTS"
	ErrCodeInvalidScheduleParameters = "INVALID_SCHEDULE_PARAMETERS"
	ErrCodeUnresolvableInstallment   = "UNRESOLVABLE_INSTALLMENT"
	ErrCodeInstallmentAlreadyPaid    = "INSTALLMENT_ALREADY_PAID"
	ErrCodeInvalidPaymentRequest     = "INVALID_PAYMENT_REQUEST"
	ErrCodeOutOfOrderSettlement      = "OUT_OF_ORDER_SETTLEMENT"
	ErrCodeAmortizationDivergence    = "AMORTIZATION_DIVERGENCE"
	ErrCodeRefinanceWithoutBasis     = "REFINANCE_WITHOUT_BASIS"
	ErrCodeInvalidPaymentPlan        = "INVALID_PAYMENT_PLAN"
	ErrCodePlanVersionConflict       = "PLAN_VERSION_CONFLICT"
	ErrCodeLoanLocked                = "LOAN_LOCKED"
	ErrCodeDatabaseError             = "DATABASE_ERROR"
	ErrCodeCacheError                = "CACHE_ERROR"
)

// Code returns the business error code carried by err, or "" if there is none.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Wrap common errors with business context
func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapLoanAlreadyExists(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyExists,
		fmt.Sprintf("Loan with ID %s already exists", loanID),
		ErrLoanAlreadyExists,
	)
}

func WrapInvalidScheduleParameters(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidScheduleParameters,
		reason,
		ErrInvalidScheduleParameters,
	)
}

func WrapUnresolvableInstallment(paymentNumber int) *BusinessError {
	return NewBusinessError(
		ErrCodeUnresolvableInstallment,
		fmt.Sprintf("Installment #%d does not exist in the payment plan", paymentNumber),
		ErrUnresolvableInstallment,
	)
}

func WrapInstallmentAlreadyPaid(paymentNumber int) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentAlreadyPaid,
		fmt.Sprintf("Installment #%d is already paid", paymentNumber),
		ErrInstallmentAlreadyPaid,
	)
}

func WrapInvalidPaymentRequest(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentRequest,
		reason,
		ErrInvalidPaymentRequest,
	)
}

func WrapOutOfOrderSettlement(target, conflicting int) *BusinessError {
	return NewBusinessError(
		ErrCodeOutOfOrderSettlement,
		fmt.Sprintf("Installment #%d cannot be settled out of order with installment #%d", target, conflicting),
		ErrOutOfOrderSettlement,
	)
}

func WrapInvalidPaymentPlan(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentPlan,
		err.Error(),
		ErrInvalidPaymentPlan,
	)
}

func WrapAmortizationDivergence(payment, balance string, iterations int) *BusinessError {
	return NewBusinessError(
		ErrCodeAmortizationDivergence,
		fmt.Sprintf("Payment %s does not retire balance %s within %d months", payment, balance, iterations),
		ErrAmortizationDivergence,
	)
}

func WrapRefinanceWithoutBasis(amount string) *BusinessError {
	return NewBusinessError(
		ErrCodeRefinanceWithoutBasis,
		fmt.Sprintf("Refinance amount %s must be greater than zero", amount),
		ErrRefinanceWithoutBasis,
	)
}

func WrapPlanVersionConflict(loanID string, version int) *BusinessError {
	return NewBusinessError(
		ErrCodePlanVersionConflict,
		fmt.Sprintf("Payment plan of loan %s changed since version %d", loanID, version),
		ErrPlanVersionConflict,
	)
}

func WrapLoanLocked(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanLocked,
		fmt.Sprintf("Loan with ID %s is being updated, retry later", loanID),
		ErrLoanLocked,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
