package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/auth"
	"github.com/erp/returns/internal/infrastructure/logger"
	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys and headers used by authentication
const (
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// ActorValidator turns a bearer token into the calling actor
type ActorValidator interface {
	ValidateActor(token string) (returns.Actor, error)
}

// AuthConfig holds configuration for the authentication middleware
type AuthConfig struct {
	Validator ActorValidator
	// SkipPaths are exact paths that don't require a token
	SkipPaths []string
	Logger    *zap.Logger
}

// Authenticate validates the bearer token and stores the resulting actor in
// both the gin context and the request context.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortUnauthorized(c, log, auth.ErrInvalidToken, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, log, auth.ErrInvalidToken, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			abortUnauthorized(c, log, auth.ErrInvalidToken, "Missing token")
			return
		}

		actor, err := cfg.Validator.ValidateActor(token)
		if err != nil {
			abortUnauthorized(c, log, err, "Token validation failed")
			return
		}

		c.Set(ActorKey, actor)
		ctx, _ := logger.WithActor(c.Request.Context(), logger.FromContext(c.Request.Context()), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireActorKinds rejects actors whose kind is not listed. It must run after Authenticate.
func RequireActorKinds(kinds ...returns.ActorKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized, "Authentication required", c.GetString(RequestIDKey)))
			return
		}
		for _, k := range kinds {
			if actor.Kind == k {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeForbidden, "Not allowed for "+string(actor.Kind)+" callers", c.GetString(RequestIDKey)))
	}
}

// ActorFrom returns the authenticated actor
func ActorFrom(c *gin.Context) (returns.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return returns.Actor{}, false
	}
	actor, ok := v.(returns.Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error, message string) {
	log.Warn("authentication failed",
		zap.Error(err),
		zap.String("message", message),
		zap.String("path", c.Request.URL.Path),
	)

	code := dto.ErrCodeUnauthorized
	msg := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, msg = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, msg = dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrUnknownActorKind),
		errors.Is(err, auth.ErrMissingStoreID),
		errors.Is(err, auth.ErrMissingCustomer):
		code, msg = dto.ErrCodeTokenInvalid, "Token does not identify a caller"
	case errors.Is(err, auth.ErrInvalidToken):
		code, msg = dto.ErrCodeTokenInvalid, "Invalid token"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, msg, c.GetString(RequestIDKey)))
}
