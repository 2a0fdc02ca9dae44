package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/naya/types"
)

// DefaultLimit History 未指定条数时的上限
const DefaultLimit = 50

var (
	// ErrStoreClosed 存储已关闭
	ErrStoreClosed = errors.New("history: store is closed")
	// ErrInvalidInput 记录的角色或内容不合法
	ErrInvalidInput = errors.New("history: invalid input")
)

// Record 一条持久化的聊天记录
type Record struct {
	ID         int64      `json:"id"`
	Role       types.Role `json:"role"`
	Content    string     `json:"content"`
	TokenCount int        `json:"token_count"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Message 转换为会话消息，保留原始时间戳
func (r Record) Message() types.Message {
	return types.NewMessageAt(r.Role, r.Content, r.CreatedAt)
}

// Store 只追加的聊天历史存储。
//
// History 返回最近的 limit 条记录，按时间升序（最新的在最后）；
// limit <= 0 时使用 DefaultLimit。
type Store interface {
	Save(ctx context.Context, rec Record) (Record, error)
	History(ctx context.Context, limit int) ([]Record, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// backendNamer 由各后端实现，用于日志与指标标签
type backendNamer interface {
	Backend() string
}

// BackendName 返回存储后端名称
func BackendName(s Store) string {
	if n, ok := s.(backendNamer); ok {
		return n.Backend()
	}
	return "unknown"
}

// prepare 校验记录并补齐时间戳与 token 数
func prepare(rec Record, counter Counter, now time.Time) (Record, error) {
	if rec.Role != types.RoleUser && rec.Role != types.RoleAssistant {
		return Record{}, fmt.Errorf("%w: role %q", ErrInvalidInput, rec.Role)
	}
	if strings.TrimSpace(rec.Content) == "" {
		return Record{}, fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)
	if rec.TokenCount <= 0 && counter != nil {
		rec.TokenCount = counter.Count(rec.Content)
	}
	return rec, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// reverse 把降序查询结果翻转为升序
func reverse(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
