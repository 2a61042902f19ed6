package webhook

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mattjoyce/hookq/internal/queue"
)

var (
	// ErrUnauthenticated is wrapped by every signature failure.
	ErrUnauthenticated = errors.New("webhook verification failed")

	ErrSignatureMissing   = fmt.Errorf("%w: signature header missing", ErrUnauthenticated)
	ErrSignatureMalformed = fmt.Errorf("%w: signature header malformed", ErrUnauthenticated)
	ErrSignatureMismatch  = fmt.Errorf("%w: signature mismatch", ErrUnauthenticated)

	// ErrInvalidPayload means the body was authentic but is not JSON.
	ErrInvalidPayload = errors.New("payload is not valid JSON")

	// ErrPayloadTooLarge means the body exceeded the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBodyRead means the request body could not be read.
	ErrBodyRead = errors.New("failed to read request body")

	// ErrSubscriptionRejected means a handshake had the wrong mode or token.
	ErrSubscriptionRejected = errors.New("subscription verification rejected")
)

// errorStatus maps an error to its HTTP status and the generic message sent
// to the client. Nothing from the request is echoed back.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSubscriptionRejected):
		return http.StatusBadRequest, ""
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload too large"
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest, "invalid payload"
	case errors.Is(err, ErrBodyRead):
		return http.StatusBadRequest, "failed to read request body"
	case errors.Is(err, queue.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "queue unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
