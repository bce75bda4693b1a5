package cache

import (
	"fmt"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory picks the idempotency backend from the Redis config
type IdempotencyStoreFactory struct {
	redisConfig   config.RedisConfig
	client        *redis.Client
	keyPrefix     string
	logger        *zap.Logger
	allowFallback bool
}

// IdempotencyStoreFactoryOption configures an IdempotencyStoreFactory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback allows a process-local store when Redis cannot be
// reached. Production turns it off so refunds are never deduplicated per node.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowFallback = allow
	}
}

// WithRedisClient reuses a client already opened for rate limiting and
// health checks. The caller keeps ownership of it.
func WithRedisClient(client *redis.Client) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.client = client
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix
func WithKeyPrefix(prefix string) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.keyPrefix = prefix
	}
}

func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		redisConfig:   cfg,
		keyPrefix:     DefaultKeyPrefix,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *IdempotencyStoreFactory) redisStore() (*RedisIdempotencyStore, error) {
	if f.client == nil {
		store, err := NewRedisIdempotencyStore(f.redisConfig)
		if err != nil {
			return nil, err
		}
		store.keyPrefix = f.keyPrefix
		return store, nil
	}
	if err := ping(f.client); err != nil {
		return nil, err
	}
	return NewRedisIdempotencyStoreWithClient(f.client, f.keyPrefix), nil
}

// CreateStore returns the Redis store when Redis is enabled and reachable.
// With Redis disabled it returns the in-memory store; with Redis down it
// falls back only when that was allowed.
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("redis disabled, idempotency keys kept in memory")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := f.redisStore()
	if err == nil {
		f.logger.Info("idempotency keys kept in redis",
			zap.String("addr", f.redisConfig.Addr()),
			zap.String("prefix", f.keyPrefix),
			zap.Bool("shared_client", f.client != nil),
		)
		return store, nil
	}
	if !f.allowFallback {
		return nil, fmt.Errorf("redis is required for idempotency: %w", err)
	}

	f.logger.Warn("redis unreachable, idempotency keys kept in memory; refund deduplication is local to this instance",
		zap.Error(err))
	return NewInMemoryIdempotencyStore(), nil
}
