package auth

import (
	"testing"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(clock shared.Clock) *JWTService {
	return NewJWTServiceWithClock(config.JWTConfig{
		Secret:          "test-secret-key-at-least-32-chars",
		Issuer:          "test-issuer",
		TokenExpiration: 15 * time.Minute,
	}, clock)
}

func TestNewJWTService_DefaultExpiration(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{Secret: "s"})
	assert.Equal(t, time.Hour, svc.Expiration())
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestJWTService(clock)

	tests := []struct {
		name  string
		actor returns.Actor
	}{
		{"customer", returns.Actor{Kind: returns.ActorCustomer, UserID: uuid.New(), CustomerID: uuid.New()}},
		{"shop", returns.Actor{Kind: returns.ActorShop, UserID: uuid.New(), StoreID: uuid.New()}},
		{"system", returns.SystemActor},
		{"courier", returns.CourierActor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := svc.Issue(tt.actor)
			require.NoError(t, err)
			assert.Equal(t, "Bearer", tok.TokenType)
			assert.Equal(t, clock.Now().Add(15*time.Minute), tok.ExpiresAt)

			got, err := svc.ValidateActor(tok.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, tt.actor, got)
		})
	}
}

func TestJWTService_IssueRejectsIncompleteActors(t *testing.T) {
	svc := newTestJWTService(shared.SystemClock{})

	_, err := svc.Issue(returns.Actor{Kind: returns.ActorShop})
	assert.ErrorIs(t, err, ErrMissingStoreID)
	_, err = svc.Issue(returns.Actor{Kind: returns.ActorCustomer})
	assert.ErrorIs(t, err, ErrMissingCustomer)
	_, err = svc.Issue(returns.Actor{Kind: "ADMIN"})
	assert.ErrorIs(t, err, ErrUnknownActorKind)
}

func TestJWTService_Validate(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestJWTService(clock)
	tok, err := svc.Issue(returns.Actor{Kind: returns.ActorShop, StoreID: uuid.New()})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		c := shared.NewManualClock(clock.Now().Add(16 * time.Minute))
		_, err := newTestJWTService(c).Validate(tok.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := shared.NewManualClock(clock.Now().Add(-time.Hour))
		_, err := newTestJWTService(c).Validate(tok.AccessToken)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTServiceWithClock(config.JWTConfig{Secret: "another-secret-key-of-32-characters", Issuer: "test-issuer"}, clock)
		_, err := other.Validate(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTServiceWithClock(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else"}, clock)
		_, err := other.Validate(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("non-HMAC signing method", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ActorKind: returns.ActorSystem}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Validate(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed ids", func(t *testing.T) {
		c := &Claims{ActorKind: returns.ActorShop, StoreID: "not-a-uuid"}
		_, err := c.Actor()
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestClaims_GetRemainingTTL(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))}}
	assert.Equal(t, time.Minute, c.GetRemainingTTL(now))
	assert.Zero(t, c.GetRemainingTTL(now.Add(time.Hour)))
	assert.Zero(t, (&Claims{}).GetRemainingTTL(now))
}
