package testutil

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// =============================================================================
// 📡 SSE 报文构造
// =============================================================================

// DeltaLine 构造一条携带片段的 data 行（带换行）
func DeltaLine(fragment string) string {
	payload := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"content": fragment}},
		},
	}
	b, _ := json.Marshal(payload)
	return "data: " + string(b) + "\n"
}

// SSEBody 把片段拼成完整的流式正文，以 [DONE] 结束
func SSEBody(fragments ...string) string {
	var sb strings.Builder
	sb.WriteString(": keep-alive\n\n")
	for _, f := range fragments {
		sb.WriteString(DeltaLine(f))
		sb.WriteString("\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

// ChunkReader 按给定分块依次返回数据，可在末尾注入错误
type ChunkReader struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	closed bool
}

// NewChunkReader 创建分块读取器
func NewChunkReader(chunks ...string) *ChunkReader {
	r := &ChunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

// WithError 所有分块读完后返回 err 而不是 io.EOF
func (r *ChunkReader) WithError(err error) *ChunkReader {
	r.err = err
	return r
}

// Read 实现 io.Reader，每次最多返回一个分块
func (r *ChunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

// Close 实现 io.Closer
func (r *ChunkReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed 是否已被关闭
func (r *ChunkReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
