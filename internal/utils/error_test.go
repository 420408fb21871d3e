package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMatchesByCode(t *testing.T) {
	err := NewErrorBuilder(ErrCodeDanglingReference).WithDetails("orders.customer_id C9").Build()
	assert.True(t, errors.Is(err, ErrDanglingReference))
	assert.False(t, errors.Is(err, ErrTypeMismatch))

	wrapped := NewErrorBuilder(ErrCodeValidationFailed).WithCause(err).Build()
	assert.True(t, errors.Is(wrapped, ErrValidationFailed))
	assert.True(t, errors.Is(wrapped, ErrDanglingReference))
	assert.True(t, errors.Is(fmt.Errorf("refresh: %w", wrapped), ErrDanglingReference))
}

func TestAppErrorMessage(t *testing.T) {
	err := NewInvalidQueryError("name must not be empty")
	assert.Equal(t, "INVALID_QUERY: "+err.Message+" - name must not be empty", err.Error())
	assert.True(t, IsErrorType(fmt.Errorf("wrapped: %w", err), ErrCodeInvalidQuery))
	assert.False(t, IsErrorType(errors.New("plain"), ErrCodeInvalidQuery))

	timeout := NewQueryTimeoutError(context.DeadlineExceeded)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
}

func TestGetErrorStatus(t *testing.T) {
	cases := map[error]int{
		NewInvalidPageError(0, 10):                        http.StatusBadRequest,
		NewQueryTooExpensiveError("full scan"):            http.StatusUnprocessableEntity,
		NewUnsupportedClaimError("2 != 3"):                http.StatusConflict,
		NewSourceUnavailableError("s3", errors.New("x")):  http.StatusServiceUnavailable,
		NewErrorBuilder(ErrCodeRefreshInProgress).Build(): http.StatusConflict,
		errors.New("unknown"):                             http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, GetErrorStatus(err), err.Error())
	}
}

func TestNewRefreshIDIsUnique(t *testing.T) {
	a, b := NewRefreshID(), NewRefreshID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
