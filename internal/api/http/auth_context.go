package httpapi

import (
	"context"

	"github.com/petmarket/escrow-hub/internal/domain/user"
)

type authContextKey string

const actorKey authContextKey = "actor"

func withActor(ctx context.Context, a user.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func actorFromContext(ctx context.Context) (user.Actor, bool) {
	a, ok := ctx.Value(actorKey).(user.Actor)
	return a, ok
}
