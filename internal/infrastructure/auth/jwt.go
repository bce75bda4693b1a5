package auth

import (
	"errors"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrUnknownActorKind = errors.New("unknown actor kind")
	ErrMissingStoreID   = errors.New("missing store_id in shop claims")
	ErrMissingCustomer  = errors.New("missing customer_id in customer claims")
)

// Claims carries the actor a token was issued for
type Claims struct {
	jwt.RegisteredClaims
	ActorKind  returns.ActorKind `json:"actor_kind"`
	UserID     string            `json:"user_id,omitempty"`
	StoreID    string            `json:"store_id,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
}

// Token is a signed access token
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"` // Bearer
}

// JWTService issues and validates actor tokens. Tokens are normally issued by
// the identity service; Issue exists for service accounts and local runs.
type JWTService struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	clock      shared.Clock
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return NewJWTServiceWithClock(cfg, shared.SystemClock{})
}

// NewJWTServiceWithClock creates a JWT service on the given clock
func NewJWTServiceWithClock(cfg config.JWTConfig, clock shared.Clock) *JWTService {
	exp := cfg.TokenExpiration
	if exp <= 0 {
		exp = time.Hour
	}
	return &JWTService{
		secret:     []byte(cfg.Secret),
		expiration: exp,
		issuer:     cfg.Issuer,
		clock:      clock,
	}
}

// Issue signs a token for the actor
func (s *JWTService) Issue(actor returns.Actor) (*Token, error) {
	claims := claimsFor(actor)
	if err := claims.validateActor(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.expiration)
	subject := actor.UserID
	if subject == uuid.Nil {
		subject = uuid.New()
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    s.issuer,
		Subject:   subject.String(),
		Audience:  jwt.ClaimStrings{s.issuer},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, ExpiresAt: expiresAt, TokenType: "Bearer"}, nil
}

// Validate parses a token and returns its claims
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if err := claims.validateActor(); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateActor validates a token and returns the actor it carries
func (s *JWTService) ValidateActor(tokenString string) (returns.Actor, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return returns.Actor{}, err
	}
	return claims.Actor()
}

// Expiration returns the token lifetime
func (s *JWTService) Expiration() time.Duration {
	return s.expiration
}

func claimsFor(a returns.Actor) *Claims {
	c := &Claims{ActorKind: a.Kind}
	if a.UserID != uuid.Nil {
		c.UserID = a.UserID.String()
	}
	if a.StoreID != uuid.Nil {
		c.StoreID = a.StoreID.String()
	}
	if a.CustomerID != uuid.Nil {
		c.CustomerID = a.CustomerID.String()
	}
	return c
}

func (c *Claims) validateActor() error {
	if !c.ActorKind.IsValid() {
		return ErrUnknownActorKind
	}
	if c.ActorKind == returns.ActorShop && c.StoreID == "" {
		return ErrMissingStoreID
	}
	if c.ActorKind == returns.ActorCustomer && c.CustomerID == "" {
		return ErrMissingCustomer
	}
	return nil
}

// Actor converts the claims into a domain actor
func (c *Claims) Actor() (returns.Actor, error) {
	a := returns.Actor{Kind: c.ActorKind}
	for _, f := range []struct {
		raw string
		dst *uuid.UUID
	}{
		{c.UserID, &a.UserID},
		{c.StoreID, &a.StoreID},
		{c.CustomerID, &a.CustomerID},
	} {
		if f.raw == "" {
			continue
		}
		id, err := uuid.Parse(f.raw)
		if err != nil {
			return returns.Actor{}, ErrInvalidClaims
		}
		*f.dst = id
	}
	return a, nil
}

// GetRemainingTTL returns the remaining time until the token expires
func (c *Claims) GetRemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := c.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
