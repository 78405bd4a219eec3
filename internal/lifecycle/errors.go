package lifecycle

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/example/carpool-engine/internal/escrow"
	"github.com/example/carpool-engine/internal/storage"
)

// ValidationError rejects a malformed reservation synchronously, before it
// ever enters the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var (
	// ErrNotCancelable is returned when a plain cancel hits a started or
	// completed trip; started trips take the cancellation-with-refund path.
	ErrNotCancelable = errors.New("reservation is not cancelable in its current state")
	// ErrInvalidTransition guards the state machine against out-of-order calls.
	ErrInvalidTransition = errors.New("invalid reservation state transition")
	// ErrIntegrity flags corrupt reservation state (e.g. matched with no
	// group). The reservation is forced into a safe canceled state.
	ErrIntegrity = errors.New("reservation state corrupt")
)

// HTTPStatus maps the domain error taxonomy to response codes. Unrecognized
// errors are internal faults.
func HTTPStatus(err error) int {
	var ve *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict),
		errors.Is(err, ErrNotCancelable),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, escrow.ErrPaymentMethodInvalid):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
