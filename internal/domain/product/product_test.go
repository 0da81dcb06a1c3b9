package product

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

func TestNewValidates(t *testing.T) {
	now := time.Now().UTC()
	_, err := New(uuid.New(), " ", 100, 1, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = New(uuid.New(), "kibble", 0, 1, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = New(uuid.New(), "kibble", 100, -1, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestReserve(t *testing.T) {
	now := time.Now().UTC()
	p, err := New(uuid.New(), "kibble", 100, 3, now)
	require.NoError(t, err)

	require.NoError(t, p.Reserve(2, now))
	assert.Equal(t, 1, p.Stock)

	err = p.Reserve(2, now)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 1, p.Stock)
}
