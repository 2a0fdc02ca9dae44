package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/naya/types"
	"github.com/stretchr/testify/assert"
)

const (
	testTimeout  = 30 * time.Second
	pollInterval = 5 * time.Millisecond
)

// TestContext 测试结束时自动取消，最长 30s
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 已取消的 ctx，用来验证提前退出路径
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertMessagesEqual 只比较角色和内容，ID 与时间戳由 Conversation 生成
func AssertMessagesEqual(t *testing.T, want []types.ChatMessage, got []types.Message) {
	t.Helper()
	pairs := make([]types.ChatMessage, 0, len(got))
	for _, m := range got {
		pairs = append(pairs, types.ChatMessage{Role: m.Role, Content: m.Content})
	}
	assert.Equal(t, want, pairs)
}

// AssertEventuallyTrue 轮询 condition 直到为真或超时
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	assert.Eventually(t, condition, timeout, pollInterval)
}

// WaitForChannel 超时返回零值和 false
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-timer.C:
		var zero T
		return zero, false
	}
}
