package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// =============================================================================
// 🌐 假网关
// =============================================================================

// GatewayRequest 网关收到的一次请求
type GatewayRequest struct {
	Header http.Header
	Body   map[string]any
}

// Gateway 基于 httptest 的假 LLM 网关（也可充当假中继）。
// 默认返回 200 text/event-stream，并按 Chunks 逐块写出、逐块 Flush。
type Gateway struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	chunks   []string
	requests []GatewayRequest
}

// NewGateway 启动假网关，测试结束时自动关闭
func NewGateway(t *testing.T, chunks ...string) *Gateway {
	t.Helper()
	g := &Gateway{status: http.StatusOK, chunks: chunks}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

// Fail 之后的请求返回给定状态码与正文
func (g *Gateway) Fail(status int, body string) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
	g.body = body
	return g
}

// Requests 返回收到的请求
func (g *Gateway) Requests() []GatewayRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GatewayRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// Hits 返回请求次数
func (g *Gateway) Hits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	g.mu.Lock()
	g.requests = append(g.requests, GatewayRequest{Header: r.Header.Clone(), Body: body})
	status, errBody, chunks := g.status, g.body, g.chunks
	g.mu.Unlock()

	if status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, errBody)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		_, _ = io.WriteString(w, c)
		if flusher != nil {
			flusher.Flush()
		}
	}
}
