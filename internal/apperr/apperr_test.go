package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := InvalidTransition("order", "shipped", "pending")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrConflict))

	wrapped := fmt.Errorf("advance: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidTransition))
	assert.Equal(t, CodeInvalidTransition, CodeOf(wrapped))
}

func TestInvalidTransitionMetadata(t *testing.T) {
	err := InvalidTransition("dispute", "open", "closed")
	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "open", e.Metadata["current"])
	assert.Equal(t, "closed", e.Metadata["requested"])
	assert.Equal(t, "dispute", e.Metadata["entity"])
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInternal, "commit failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "commit failed: boom", err.Error())
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidInput:      http.StatusBadRequest,
		CodeForbidden:         http.StatusForbidden,
		CodeNotFound:          http.StatusNotFound,
		CodeConflict:          http.StatusConflict,
		CodeDisputeBlocking:   http.StatusConflict,
		CodeInsufficientStock: http.StatusUnprocessableEntity,
		CodeLedgerIntegrity:   http.StatusInternalServerError,
		CodeUnauthenticated:   http.StatusUnauthorized,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(code), code)
	}
}
