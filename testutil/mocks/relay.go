// Package mocks 提供会话测试使用的脚本化协作者。
package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/BaSui01/naya/types"
)

// --- Relay ---

// Relay 脚本化的中继客户端，每次 Stream 返回下一段脚本
type Relay struct {
	mu      sync.Mutex
	bodies  []func() io.ReadCloser
	err     error
	block   chan struct{}
	calls   [][]types.ChatMessage
	started chan struct{}
}

// NewRelay 创建中继模拟
func NewRelay() *Relay {
	return &Relay{started: make(chan struct{}, 16)}
}

// WithBody 追加一次成功响应
func (r *Relay) WithBody(body string) *Relay {
	return r.WithReader(func() io.ReadCloser { return io.NopCloser(strings.NewReader(body)) })
}

// WithReader 追加一次自定义响应
func (r *Relay) WithReader(fn func() io.ReadCloser) *Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, fn)
	return r
}

// WithError 之后所有调用都返回 err
func (r *Relay) WithError(err error) *Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	return r
}

// Blocking Stream 在 release 关闭前阻塞（或直到 ctx 取消）
func (r *Relay) Blocking(release chan struct{}) *Relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.block = release
	return r
}

// Started 每次进入 Stream 时发出信号
func (r *Relay) Started() <-chan struct{} {
	return r.started
}

// Stream 实现会话的中继接口
func (r *Relay) Stream(ctx context.Context, msgs []types.ChatMessage) (io.ReadCloser, error) {
	r.mu.Lock()
	cp := make([]types.ChatMessage, len(msgs))
	copy(cp, msgs)
	r.calls = append(r.calls, cp)
	block := r.block
	r.mu.Unlock()

	select {
	case r.started <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.bodies) == 0 {
		return io.NopCloser(strings.NewReader("data: [DONE]\n")), nil
	}
	next := r.bodies[0]
	r.bodies = r.bodies[1:]
	return next(), nil
}

// Calls 返回每次调用收到的消息
func (r *Relay) Calls() [][]types.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]types.ChatMessage, len(r.calls))
	copy(out, r.calls)
	return out
}
