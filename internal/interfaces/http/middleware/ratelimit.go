package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const rateLimitKeyPrefix = "returns:ratelimit"

// RateLimitConfig holds configuration for the rate limiting middleware
type RateLimitConfig struct {
	Requests int64
	Period   time.Duration
	// Redis enables a store shared by every replica; nil keeps counters in memory
	Redis *redis.Client
	// KeyFunc picks the bucket of a request; defaults to the client IP
	KeyFunc func(c *gin.Context) string
	Logger  *zap.Logger
}

// NewRateLimitStore returns the counter store for cfg
func NewRateLimitStore(cfg RateLimitConfig) (limiter.Store, error) {
	if cfg.Redis == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          rateLimitKeyPrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		}), nil
	}
	return sredis.NewStoreWithOptions(cfg.Redis, limiter.StoreOptions{
		Prefix:   rateLimitKeyPrefix,
		MaxRetry: 3,
	})
}

// RateLimit throttles requests per key over a fixed window. When the counter
// store fails the request is let through and the error logged.
func RateLimit(cfg RateLimitConfig, store limiter.Store) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rate := limiter.Rate{Period: cfg.Period, Limit: cfg.Requests}
	instance := limiter.New(store, rate)

	opts := []mgin.Option{
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.Header("Retry-After", strconv.Itoa(int(rate.Period.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited, "Too many requests, please slow down", c.GetString(RequestIDKey)))
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			log.Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
		}),
	}
	if cfg.KeyFunc != nil {
		opts = append(opts, mgin.WithKeyGetter(cfg.KeyFunc))
	}
	return mgin.NewMiddleware(instance, opts...)
}

// ActorRateKey buckets authenticated callers by store or customer and
// anonymous callers by IP. It must run after Authenticate.
func ActorRateKey(c *gin.Context) string {
	actor, ok := ActorFrom(c)
	if !ok {
		return "ip:" + c.ClientIP()
	}
	switch {
	case actor.StoreID != uuid.Nil:
		return "store:" + actor.StoreID.String()
	case actor.CustomerID != uuid.Nil:
		return "customer:" + actor.CustomerID.String()
	}
	return "kind:" + string(actor.Kind)
}
