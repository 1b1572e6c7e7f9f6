package handler

import (
	"errors"
	"net/http"

	customError "github.com/segyhp/amortization-engine/pkg/errors"
	"github.com/segyhp/amortization-engine/pkg/response"

	"github.com/rs/zerolog/log"
)

var statusByCode = map[string]int{
	customError.ErrCodeLoanNotFound:              http.StatusNotFound,
	customError.ErrCodeUnresolvableInstallment:   http.StatusNotFound,
	customError.ErrCodeInvalidScheduleParameters: http.StatusBadRequest,
	customError.ErrCodeInvalidPaymentRequest:     http.StatusBadRequest,
	customError.ErrCodeLoanAlreadyExists:         http.StatusConflict,
	customError.ErrCodeInstallmentAlreadyPaid:    http.StatusConflict,
	customError.ErrCodeOutOfOrderSettlement:      http.StatusConflict,
	customError.ErrCodePlanVersionConflict:       http.StatusConflict,
	customError.ErrCodeLoanLocked:                http.StatusConflict,
	customError.ErrCodeAmortizationDivergence:    http.StatusUnprocessableEntity,
	customError.ErrCodeRefinanceWithoutBasis:     http.StatusUnprocessableEntity,
	customError.ErrCodeInvalidPaymentPlan:        http.StatusUnprocessableEntity,
}

// writeServiceError maps a service error to its HTTP status. Anything that is
// not a known business error is a 500 and its details stay in the log.
func writeServiceError(w http.ResponseWriter, err error) {
	var businessErr *customError.BusinessError
	if errors.As(err, &businessErr) {
		if status, ok := statusByCode[businessErr.Code]; ok {
			response.ErrorWithCode(w, status, businessErr.Code, businessErr.Message, nil)
			return
		}
	}

	log.Error().Err(err).Msg("request failed")
	response.ErrorWithCode(w, http.StatusInternalServerError, customError.Code(err), "Internal server error", nil)
}
