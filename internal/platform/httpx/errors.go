package httpx

import (
	"errors"
	"net/http"

	"github.com/atrium-bms/atrium/internal/accounting/shared"
	internalShared "github.com/atrium-bms/atrium/internal/shared"
)

// StatusFor maps domain errors onto HTTP status codes. Validation
// failures are 422, state and period gating conflicts 409, lookups 404.
// Integrity violations surface as 500 so they page the operator.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrJournalNotFound),
		errors.Is(err, shared.ErrLineNotFound),
		errors.Is(err, shared.ErrPeriodNotFound),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, internalShared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrMalformedLine),
		errors.Is(err, shared.ErrUnknownAccount),
		errors.Is(err, shared.ErrInvalidCode),
		errors.Is(err, shared.ErrInvalidHierarchy),
		errors.Is(err, shared.ErrInvalidPeriod),
		errors.Is(err, shared.ErrDateOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrDuplicateCode),
		errors.Is(err, shared.ErrInvalidTransition),
		errors.Is(err, shared.ErrHasActivity),
		errors.Is(err, shared.ErrNotPostable),
		errors.Is(err, shared.ErrPeriodClosed),
		errors.Is(err, shared.ErrPeriodLocked),
		errors.Is(err, shared.ErrPeriodOverlap),
		errors.Is(err, internalShared.ErrLockHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// DomainProblem writes a problem response for a service error. Internal
// failures get a generic detail so internals do not leak.
func DomainProblem(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = http.StatusText(http.StatusInternalServerError)
	}
	Problem(w, status, http.StatusText(status), detail)
}
