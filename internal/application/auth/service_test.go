package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/user"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("token-secret", "payment-secret", zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSecrets(t *testing.T) {
	_, err := NewService("", "x", zerolog.Nop())
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	svc := newTestService(t)
	id := uuid.New()

	token, err := svc.IssueToken(id, user.RoleAdmin, time.Hour)
	require.NoError(t, err)

	actor, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, id, actor.UserID)
	assert.True(t, actor.IsAdmin())
}

func TestAuthenticateRejects(t *testing.T) {
	svc := newTestService(t)
	id := uuid.New()

	expired, err := svc.IssueToken(id, user.RoleMember, -time.Minute)
	require.NoError(t, err)

	system, err := svc.IssueToken(id, user.RoleSystem, time.Hour)
	require.NoError(t, err)

	other, err := NewService("other-secret", "payment-secret", zerolog.Nop())
	require.NoError(t, err)
	forged, err := other.IssueToken(id, user.RoleAdmin, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": id.String(), "role": "ADMIN"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":       "",
		"garbage":     "not-a-jwt",
		"expired":     expired,
		"system role": system,
		"wrong key":   forged,
		"alg none":    unsigned,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(token)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}
}

func TestPaymentSignal(t *testing.T) {
	svc := newTestService(t)
	sig := PaymentSignal{OrderID: uuid.New(), Amount: 220000, Reference: "pay_123"}

	token, err := svc.SignPaymentSignal(sig, time.Minute)
	require.NoError(t, err)

	got, err := svc.VerifyPaymentSignal(token)
	require.NoError(t, err)
	assert.Equal(t, sig, *got)

	_, err = svc.Authenticate(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "payment signals are not API tokens")

	bad, err := svc.SignPaymentSignal(PaymentSignal{OrderID: sig.OrderID, Amount: 0, Reference: "x"}, time.Minute)
	require.NoError(t, err)
	_, err = svc.VerifyPaymentSignal(bad)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
