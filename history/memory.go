package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内存储，用于本地运行与测试
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	closed  bool
	counter Counter
	now     func() time.Time
}

// NewMemoryStore 创建内存存储，counter 为 nil 时使用估算器
func NewMemoryStore(counter Counter) *MemoryStore {
	if counter == nil {
		counter = Estimator
	}
	return &MemoryStore{counter: counter, now: time.Now}
}

// Backend 实现 backendNamer
func (s *MemoryStore) Backend() string { return "memory" }

// Save 追加一条记录
func (s *MemoryStore) Save(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}
	rec, err := prepare(rec, s.counter, s.now())
	if err != nil {
		return Record{}, err
	}
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return rec, nil
}

// History 返回最近 limit 条记录，按插入顺序
func (s *MemoryStore) History(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	limit = normalizeLimit(limit)
	start := len(s.records) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Record, len(s.records)-start)
	copy(out, s.records[start:])
	return out, nil
}

// Clear 清空记录，ID 序列不重置
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.records = nil
	return nil
}

// Ping 实现 Store
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close 实现 Store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
