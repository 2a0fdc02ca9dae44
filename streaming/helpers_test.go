package streaming

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type sinkMessage struct {
	id      string
	role    string
	content string
	sealed  bool
}

// recordingSink 记录所有调用，并维护一个最小的消息列表
type recordingSink struct {
	mu       sync.Mutex
	seq      int
	messages []*sinkMessage
	calls    []string
	lengths  []int // 每次 Append 后活动目标的长度
}

func (s *recordingSink) Open() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("assistant-%d", s.seq)
	s.messages = append(s.messages, &sinkMessage{id: id, role: "assistant"})
	s.calls = append(s.calls, "open")
	return id
}

func (s *recordingSink) Append(id, fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(id)
	m.content += fragment
	s.lengths = append(s.lengths, len(m.content))
	s.calls = append(s.calls, "append")
}

func (s *recordingSink) Seal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.find(id).sealed = true
	s.calls = append(s.calls, "seal")
}

func (s *recordingSink) Rollback(id, apology string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if m := s.find(id); m != nil && m.content == "" {
			s.remove(id)
		} else if m != nil {
			m.sealed = true
		}
	}
	s.seq++
	s.messages = append(s.messages, &sinkMessage{
		id: fmt.Sprintf("error-%d", s.seq), role: "assistant", content: apology, sealed: true,
	})
	s.calls = append(s.calls, "rollback")
}

func (s *recordingSink) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
	s.calls = append(s.calls, "drop")
}

func (s *recordingSink) find(id string) *sinkMessage {
	for _, m := range s.messages {
		if m.id == id {
			return m
		}
	}
	return nil
}

func (s *recordingSink) remove(id string) {
	for i, m := range s.messages {
		if m.id == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *recordingSink) contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.content)
	}
	return out
}

// chunkReader 按给定分块依次返回数据
type chunkReader struct {
	chunks [][]byte
	err    error // 所有分块读完后返回的错误，nil 表示 io.EOF
}

func newChunkReader(chunks ...string) *chunkReader {
	r := &chunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
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

// openReader 发完分块后阻塞，模拟不关闭连接的上游
type openReader struct {
	chunks *chunkReader
	closed chan struct{}
	once   sync.Once
}

func newOpenReader(chunks ...string) *openReader {
	return &openReader{chunks: newChunkReader(chunks...), closed: make(chan struct{})}
}

func (r *openReader) Read(p []byte) (int, error) {
	if len(r.chunks.chunks) > 0 {
		n, err := r.chunks.Read(p)
		if err != io.EOF {
			return n, err
		}
	}
	<-r.closed
	return 0, io.EOF
}

func (r *openReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

// splitAt 在给定位置切分字符串
func splitAt(body string, cuts []int) []string {
	var chunks []string
	prev := 0
	for _, c := range cuts {
		if c <= prev || c >= len(body) {
			continue
		}
		chunks = append(chunks, body[prev:c])
		prev = c
	}
	return append(chunks, body[prev:])
}

// deltaLine 构造一条携带片段的 data 行
func deltaLine(fragment string) string {
	payload := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion.chunk",
		"choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"content": fragment}},
		},
	}
	b, _ := json.Marshal(payload)
	return "data: " + string(b) + "\n"
}

func sseBody(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		sb.WriteString(deltaLine(f))
	}
	sb.WriteString("data: [DONE]\n")
	return sb.String()
}
