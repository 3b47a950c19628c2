package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrorKind classifies every failure the core can surface. Validation and
// terminal business kinds are never retried; DEPENDENCY_UNAVAILABLE and
// LOCK_TIMEOUT are the only kinds the async pipeline treats as transient.
type ErrorKind string

const (
	ErrValidation            ErrorKind = "VALIDATION_ERROR"
	ErrRateLimited           ErrorKind = "RATE_LIMITED"
	ErrLockTimeout           ErrorKind = "LOCK_TIMEOUT"
	ErrInsufficientStock     ErrorKind = "INSUFFICIENT_STOCK"
	ErrAlreadyWon            ErrorKind = "ALREADY_WON"
	ErrCacheMiss             ErrorKind = "CACHE_MISS"
	ErrStateInconsistent     ErrorKind = "STATE_INCONSISTENT"
	ErrOrderCreateFailed     ErrorKind = "ORDER_CREATE_FAILED"
	ErrDependencyUnavailable ErrorKind = "DEPENDENCY_UNAVAILABLE"
	ErrNotFound              ErrorKind = "NOT_FOUND"
	ErrConflict              ErrorKind = "CONFLICT"
	ErrInternalServer        ErrorKind = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Kind    ErrorKind   `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewAPIError(kind ErrorKind, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// KindOf extracts the ErrorKind from an error, or ErrInternalServer when the
// error is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ErrInternalServer
}

// Retryable reports whether the async pipeline should redeliver the request
// that produced this error.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrDependencyUnavailable, ErrLockTimeout, ErrInternalServer:
		return true
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case ErrValidation, ErrCacheMiss:
			return http.StatusBadRequest
		case ErrRateLimited:
			return http.StatusTooManyRequests
		case ErrNotFound:
			return http.StatusNotFound
		case ErrAlreadyWon, ErrConflict:
			return http.StatusConflict
		case ErrInsufficientStock, ErrOrderCreateFailed:
			return http.StatusUnprocessableEntity
		case ErrLockTimeout, ErrDependencyUnavailable:
			return http.StatusServiceUnavailable
		case ErrStateInconsistent, ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
