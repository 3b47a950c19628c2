package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorError(t *testing.T) {
	err := NewAPIError(ErrInsufficientStock, "stock exhausted", nil)
	assert.Equal(t, "INSUFFICIENT_STOCK: stock exhausted", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrAlreadyWon, KindOf(NewAPIError(ErrAlreadyWon, "already won", nil)))
	assert.Equal(t, ErrInternalServer, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", NewAPIError(ErrLockTimeout, "lock wait expired", nil))
	assert.Equal(t, ErrLockTimeout, KindOf(wrapped))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewAPIError(ErrDependencyUnavailable, "redis down", nil)))
	assert.True(t, Retryable(NewAPIError(ErrLockTimeout, "lock wait expired", nil)))
	assert.True(t, Retryable(errors.New("unknown")))

	assert.False(t, Retryable(NewAPIError(ErrInsufficientStock, "stock exhausted", nil)))
	assert.False(t, Retryable(NewAPIError(ErrAlreadyWon, "already won", nil)))
	assert.False(t, Retryable(NewAPIError(ErrValidation, "bad input", nil)))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		ErrValidation:            http.StatusBadRequest,
		ErrRateLimited:           http.StatusTooManyRequests,
		ErrNotFound:              http.StatusNotFound,
		ErrAlreadyWon:            http.StatusConflict,
		ErrInsufficientStock:     http.StatusUnprocessableEntity,
		ErrLockTimeout:           http.StatusServiceUnavailable,
		ErrStateInconsistent:     http.StatusInternalServerError,
		ErrDependencyUnavailable: http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		assert.Equal(t, want, MapErrorToHTTPStatus(NewAPIError(kind, "x", nil)), string(kind))
	}
	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain")))
}
