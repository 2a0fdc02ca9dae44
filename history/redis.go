package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 历史存储
// =============================================================================
// 记录以 JSON 追加到列表 <prefix>chat_history，ID 来自 <prefix>chat_history:seq。

// RedisStore 基于 Redis 列表的历史存储
type RedisStore struct {
	client     *redis.Client
	listKey    string
	seqKey     string
	maxEntries int64
	ownsClient bool
	counter    Counter
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
}

// RedisOption 配置 RedisStore
type RedisOption func(*RedisStore)

// WithMaxEntries 限制列表长度，超出部分从头部裁剪；0 表示不限制
func WithMaxEntries(n int64) RedisOption {
	return func(s *RedisStore) {
		if n >= 0 {
			s.maxEntries = n
		}
	}
}

// WithRedisCounter 设置 token 计数器
func WithRedisCounter(c Counter) RedisOption {
	return func(s *RedisStore) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithOwnedClient Close 时一并关闭 client
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) { s.ownsClient = true }
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger, opts ...RedisOption) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RedisStore{
		client:  client,
		listKey: keyPrefix + "chat_history",
		seqKey:  keyPrefix + "chat_history:seq",
		counter: Estimator,
		logger:  logger.With(zap.String("component", "history_redis")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend 实现 backendNamer
func (s *RedisStore) Backend() string { return "redis" }

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save 分配 ID 后追加到列表
func (s *RedisStore) Save(ctx context.Context, rec Record) (Record, error) {
	if err := s.checkOpen(); err != nil {
		return Record{}, err
	}
	rec, err := prepare(rec, s.counter, s.now())
	if err != nil {
		return Record{}, err
	}

	id, err := s.client.Incr(ctx, s.seqKey).Result()
	if err != nil {
		return Record{}, fmt.Errorf("history: allocate id: %w", err)
	}
	rec.ID = id

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("history: encode record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.listKey, data)
		if s.maxEntries > 0 {
			pipe.LTrim(ctx, s.listKey, -s.maxEntries, -1)
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("history: append record: %w", err)
	}
	return rec, nil
}

// History 读取列表尾部 limit 条
func (s *RedisStore) History(ctx context.Context, limit int) ([]Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	vals, err := s.client.LRange(ctx, s.listKey, -int64(normalizeLimit(limit)), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: read records: %w", err)
	}

	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			s.logger.Warn("skipping undecodable history entry", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Clear 删除列表，ID 序列保留
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.listKey).Err(); err != nil {
		return fmt.Errorf("history: clear records: %w", err)
	}
	return nil
}

// Ping 实现 Store
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close 实现 Store
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
