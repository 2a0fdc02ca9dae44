package history

import (
	"context"
	"time"

	"github.com/BaSui01/naya/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📝 尽力而为的历史记录器
// =============================================================================

const defaultOpTimeout = 5 * time.Second

// Recorder 包装 Store，吞掉错误只记录日志，会话不因持久化失败而中断。
// store 为 nil 时所有操作都是空操作。
type Recorder struct {
	store   Store
	backend string
	limit   int
	timeout time.Duration
	logger  *zap.Logger
}

// RecorderOption 配置 Recorder
type RecorderOption func(*Recorder)

// WithLimit 设置 Load 读取的条数
func WithLimit(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithTimeout 设置单次操作超时
func WithTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder 创建记录器
func NewRecorder(store Store, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:   store,
		limit:   DefaultLimit,
		timeout: defaultOpTimeout,
	}
	if store != nil {
		r.backend = BackendName(store)
	}
	r.logger = logger.With(zap.String("component", "history_recorder"), zap.String("backend", r.backend))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled 是否配置了存储
func (r *Recorder) Enabled() bool {
	return r != nil && r.store != nil
}

// Save 保存一条消息，失败只记日志
func (r *Recorder) Save(ctx context.Context, role types.Role, content string) {
	if !r.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if _, err := r.store.Save(ctx, Record{Role: role, Content: content}); err != nil {
		r.logger.Warn("failed to save chat message",
			zap.String("role", string(role)),
			zap.Int("content_len", len(content)),
			zap.Error(err))
	}
}

// Load 读取最近的历史并转换为会话消息，失败时返回空
func (r *Recorder) Load(ctx context.Context) []types.Message {
	if !r.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.store.History(ctx, r.limit)
	if err != nil {
		r.logger.Error("failed to load chat history", zap.Error(err))
		return nil
	}
	msgs := make([]types.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, rec.Message())
	}
	return msgs
}

// Clear 清空持久化历史，失败只记日志
func (r *Recorder) Clear(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Clear(ctx); err != nil {
		r.logger.Error("failed to clear chat history", zap.Error(err))
	}
}
