package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/naya/internal/database"
	"github.com/BaSui01/naya/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ SQL 历史存储（postgres / mysql / sqlite）
// =============================================================================

// chatHistoryRow chat_history 表的行
type chatHistoryRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Role       string    `gorm:"type:varchar(16);not null"`
	Content    string    `gorm:"type:text;not null"`
	TokenCount int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null;index:idx_chat_history_created_at"`
}

// TableName 实现 gorm 的 Tabler
func (chatHistoryRow) TableName() string { return "chat_history" }

func (r chatHistoryRow) record() Record {
	return Record{
		ID:         r.ID,
		Role:       types.Role(r.Role),
		Content:    r.Content,
		TokenCount: r.TokenCount,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// SQLStore 基于 GORM 的历史存储
type SQLStore struct {
	pool    *database.PoolManager
	counter Counter
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// SQLOption 配置 SQLStore
type SQLOption func(*sqlOptions)

type sqlOptions struct {
	autoMigrate bool
	counter     Counter
}

// WithAutoMigrate 打开时自动建表（迁移工具之外的兜底）
func WithAutoMigrate(enabled bool) SQLOption {
	return func(o *sqlOptions) { o.autoMigrate = enabled }
}

// WithSQLCounter 设置 token 计数器
func WithSQLCounter(c Counter) SQLOption {
	return func(o *sqlOptions) {
		if c != nil {
			o.counter = c
		}
	}
}

// NewSQLStore 在已打开的连接池上创建存储。Close 会关闭连接池。
func NewSQLStore(ctx context.Context, pool *database.PoolManager, logger *zap.Logger, opts ...SQLOption) (*SQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("history: nil database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := sqlOptions{counter: Estimator}
	for _, opt := range opts {
		opt(&o)
	}

	if o.autoMigrate {
		if err := pool.DB().WithContext(ctx).AutoMigrate(&chatHistoryRow{}); err != nil {
			return nil, fmt.Errorf("history: auto migrate chat_history: %w", err)
		}
	}

	return &SQLStore{
		pool:    pool,
		counter: o.counter,
		logger:  logger.With(zap.String("component", "history_sql")),
		now:     time.Now,
	}, nil
}

// Backend 实现 backendNamer
func (s *SQLStore) Backend() string { return "sql" }

func (s *SQLStore) db(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.pool.DB().WithContext(ctx), nil
}

// Save 插入一行
func (s *SQLStore) Save(ctx context.Context, rec Record) (Record, error) {
	db, err := s.db(ctx)
	if err != nil {
		return Record{}, err
	}
	rec, err = prepare(rec, s.counter, s.now())
	if err != nil {
		return Record{}, err
	}

	row := chatHistoryRow{
		Role:       string(rec.Role),
		Content:    rec.Content,
		TokenCount: rec.TokenCount,
		CreatedAt:  rec.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return Record{}, fmt.Errorf("history: insert chat_history: %w", err)
	}
	rec.ID = row.ID
	return rec, nil
}

// History 取最近 limit 行再翻转为升序
func (s *SQLStore) History(ctx context.Context, limit int) ([]Record, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []chatHistoryRow
	err = db.Order("created_at DESC").Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history: query chat_history: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	reverse(out)
	return out, nil
}

// Clear 删除全部行
func (s *SQLStore) Clear(ctx context.Context) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	res := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&chatHistoryRow{})
	if res.Error != nil {
		return fmt.Errorf("history: clear chat_history: %w", res.Error)
	}
	s.logger.Info("chat history cleared", zap.Int64("rows", res.RowsAffected))
	return nil
}

// Ping 实现 Store
func (s *SQLStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.pool.Ping(ctx)
}

// Close 关闭底层连接池
func (s *SQLStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.pool.Close()
}
