// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807, attaching
// the structured detail each error class carries.
func RespondError(w http.ResponseWriter, err error) {
	var validationErr *shared.ValidationError
	var stateErr *shared.StateError
	var paymentErr *shared.PaymentError

	switch {
	case errors.As(err, &validationErr):
		ProblemExtra(w, http.StatusBadRequest, "Validation Failed", err.Error(), map[string]any{
			"violations": validationErr.Violations,
		})
	case errors.As(err, &stateErr):
		ProblemExtra(w, http.StatusConflict, "Invalid State Transition", err.Error(), map[string]any{
			"currentStatus": stateErr.Current,
		})
	case errors.As(err, &paymentErr):
		ProblemExtra(w, http.StatusUnprocessableEntity, "Invalid Payment", err.Error(), map[string]any{
			"maxAmount": paymentErr.MaxAmount,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrCrossOwner):
		Problem(w, http.StatusConflict, "Cross Owner Violation", err.Error())
	case errors.Is(err, shared.ErrCounterUnavailable), errors.Is(err, shared.ErrLockHeld):
		Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
