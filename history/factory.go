package history

import (
	"context"
	"fmt"

	"github.com/BaSui01/naya/config"
	"github.com/BaSui01/naya/internal/database"
	"github.com/BaSui01/naya/internal/tlsutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type factoryOptions struct {
	counter     Counter
	poolOptions []database.PoolOption
}

// FactoryOption 配置 NewStore
type FactoryOption func(*factoryOptions)

// WithCounter 设置各后端共用的 token 计数器
func WithCounter(c Counter) FactoryOption {
	return func(o *factoryOptions) {
		if c != nil {
			o.counter = c
		}
	}
}

// WithPoolOptions 透传给 SQL 连接池
func WithPoolOptions(opts ...database.PoolOption) FactoryOption {
	return func(o *factoryOptions) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// NewStore 按 history.backend 创建存储。backend 为 none 时返回 nil, nil。
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...FactoryOption) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := factoryOptions{counter: Estimator}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.History.Backend {
	case "", "none":
		return nil, nil

	case "memory":
		return NewMemoryStore(o.counter), nil

	case "sql":
		pool, err := database.Open(cfg.Database, logger, o.poolOptions...)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		store, err := NewSQLStore(ctx, pool, logger,
			WithAutoMigrate(cfg.History.AutoMigrate),
			WithSQLCounter(o.counter))
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return store, nil

	case "redis":
		ropts := &redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}
		if cfg.Redis.TLSEnabled {
			ropts.TLSConfig = tlsutil.DefaultTLSConfig()
		}
		client := redis.NewClient(ropts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("history: failed to connect to redis: %w", err)
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix, logger,
			WithOwnedClient(),
			WithRedisCounter(o.counter)), nil

	case "mongo":
		return NewMongoStore(ctx, cfg.Mongo, o.counter, logger)

	default:
		return nil, fmt.Errorf("history: unsupported backend %q", cfg.History.Backend)
	}
}
