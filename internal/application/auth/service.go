package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/user"
)

var ErrMissingSecret = errors.New("auth: signing secret is required")

// Service verifies identity tokens minted by the platform identity provider
// and payment capture signals minted by the payment gateway.
type Service struct {
	tokenSecret   []byte
	paymentSecret []byte
	now           func() time.Time
	logger        zerolog.Logger
}

// NewService creates an auth service. Both secrets are HMAC keys.
func NewService(tokenSecret, paymentSecret string, logger zerolog.Logger) (*Service, error) {
	if tokenSecret == "" || paymentSecret == "" {
		return nil, ErrMissingSecret
	}
	return &Service{
		tokenSecret:   []byte(tokenSecret),
		paymentSecret: []byte(paymentSecret),
		now:           time.Now,
		logger:        logger.With().Str("service", "auth").Logger(),
	}, nil
}

type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an API token. Production tokens come from the identity
// provider; this exists for operators and tests.
func (s *Service) IssueToken(userID uuid.UUID, role user.Role, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.tokenSecret)
}

// Authenticate resolves a bearer token to the calling actor.
func (s *Service) Authenticate(tokenString string) (user.Actor, error) {
	var claims actorClaims
	if err := s.parse(tokenString, s.tokenSecret, &claims); err != nil {
		return user.Actor{}, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return user.Actor{}, apperr.New(apperr.CodeUnauthenticated, "token subject is not a user id")
	}
	role, err := user.ParseRole(claims.Role)
	if err != nil {
		return user.Actor{}, apperr.New(apperr.CodeUnauthenticated, "token carries an unsupported role")
	}
	return user.Actor{UserID: id, Role: role}, nil
}

// PaymentSignal is the gateway's capture notification.
type PaymentSignal struct {
	OrderID   uuid.UUID `json:"order_id"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
}

type paymentClaims struct {
	PaymentSignal
	jwt.RegisteredClaims
}

// SignPaymentSignal produces a signal token the way the gateway does.
func (s *Service) SignPaymentSignal(sig PaymentSignal, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, paymentClaims{
		PaymentSignal: sig,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sig.OrderID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.paymentSecret)
}

// VerifyPaymentSignal checks the gateway signature and returns the signal.
func (s *Service) VerifyPaymentSignal(tokenString string) (*PaymentSignal, error) {
	var claims paymentClaims
	if err := s.parse(tokenString, s.paymentSecret, &claims); err != nil {
		return nil, err
	}
	if claims.OrderID == uuid.Nil || strings.TrimSpace(claims.Reference) == "" {
		return nil, apperr.InvalidInput("payment signal requires order_id and reference")
	}
	if claims.Amount <= 0 {
		return nil, apperr.InvalidInput("payment signal amount must be positive")
	}
	return &claims.PaymentSignal, nil
}

func (s *Service) parse(tokenString string, secret []byte, claims jwt.Claims) error {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return apperr.ErrUnauthenticated
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		s.logger.Debug().Err(err).Msg("token rejected")
		return apperr.Wrap(apperr.CodeUnauthenticated, "invalid token", err)
	}
	return nil
}
