package history

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultEncoding 计算 token_count 使用的编码
const DefaultEncoding = "cl100k_base"

// Counter 计算文本的 token 数
type Counter interface {
	Count(text string) int
}

// CounterFunc 函数适配器
type CounterFunc func(text string) int

// Count 实现 Counter
func (f CounterFunc) Count(text string) int { return f(text) }

// EstimateTokens 按字符数粗略估算 token 数，约 4 个字符一个 token
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Estimator 基于字符数的估算器
var Estimator Counter = CounterFunc(EstimateTokens)

// TokenCounter 基于 tiktoken 的计数器。
// 编码在首次使用时加载（可能需要下载词表），加载失败则退化为估算。
type TokenCounter struct {
	encoding string
	logger   *zap.Logger
	load     func(encoding string) (*tiktoken.Tiktoken, error)

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter 创建计数器，encoding 为空时使用 cl100k_base
func NewTokenCounter(encoding string, logger *zap.Logger) *TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCounter{
		encoding: encoding,
		logger:   logger.With(zap.String("component", "token_counter")),
		load:     tiktoken.GetEncoding,
	}
}

// Count 返回 token 数
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := c.load(c.encoding)
		if err != nil {
			c.logger.Warn("tiktoken unavailable, falling back to estimate",
				zap.String("encoding", c.encoding),
				zap.Error(err))
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}
