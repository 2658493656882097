package appErrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the status code the API answers with, and a
// short machine-readable code.
func HTTPStatus(err error) (int, string) {
	var (
		validation *ValidationError
		compliance *ComplianceBlock
		advisory   *AdvisoryPrompt
		balance    *InsufficientBalance
		lock       *ScheduleLockViolation
		transport  *TransportFailure
		duplicate  *DuplicateDispatch
		state      *InvalidState
		notFound   *ErrCampaignNotFound
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &compliance):
		return http.StatusUnprocessableEntity, "compliance_block"
	case errors.As(err, &advisory):
		return http.StatusConflict, "advisory_prompt"
	case errors.As(err, &balance):
		return http.StatusPaymentRequired, "insufficient_balance"
	case errors.As(err, &lock):
		return http.StatusLocked, "schedule_locked"
	case errors.As(err, &transport):
		return http.StatusServiceUnavailable, "transport_failure"
	case errors.As(err, &duplicate):
		return http.StatusTooManyRequests, "duplicate_dispatch"
	case errors.As(err, &state):
		return http.StatusConflict, "invalid_state"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}
