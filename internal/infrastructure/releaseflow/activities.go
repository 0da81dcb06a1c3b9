package releaseflow

import (
	"context"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

// Releaser is the engine operation the activity drives.
type Releaser interface {
	ReleaseIfDue(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type Activities struct {
	releaser Releaser
}

func NewActivities(releaser Releaser) *Activities {
	return &Activities{releaser: releaser}
}

// ReleaseIfDue releases held funds for the order when the cooldown has
// elapsed. Business refusals are not retried; storage failures are.
func (a *Activities) ReleaseIfDue(ctx context.Context, orderID string) (bool, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return false, temporal.NewNonRetryableApplicationError("invalid order id", errTypeRejected, err)
	}
	released, err := a.releaser.ReleaseIfDue(ctx, id)
	if err == nil {
		return released, nil
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeDisputeBlocking:
		return false, temporal.NewNonRetryableApplicationError("escrow frozen by dispute", errTypeDisputeBlocking, err)
	case apperr.CodeNotFound, apperr.CodeForbidden, apperr.CodeInvalidTransition, apperr.CodeLedgerIntegrity:
		return false, temporal.NewNonRetryableApplicationError("release rejected", errTypeRejected, err)
	}
	return false, err
}
