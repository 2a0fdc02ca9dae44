package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/naya/internal/tlsutil"
	"github.com/BaSui01/naya/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🌐 中继 HTTP 客户端
// =============================================================================

const (
	// MsgNoResponse 非 2xx 且没有错误正文时的提示
	MsgNoResponse = "Gagal mendapatkan respons"
	// MsgEmptyBody 响应没有正文时的提示
	MsgEmptyBody = "Tidak ada respons dari server"

	maxErrorBody = 4096
)

// Relay 打开一次流式回合，返回的 body 由调用方关闭
type Relay interface {
	Stream(ctx context.Context, msgs []types.ChatMessage) (io.ReadCloser, error)
}

// ClientConfig 中继客户端配置
type ClientConfig struct {
	// URL 中继端点，如 http://localhost:8080/api/v1/chat
	URL string
	// PublishableKey 以 Bearer 方式携带的可公开密钥
	PublishableKey string
	// HeaderTimeout 等待响应头的超时，0 表示不限制
	HeaderTimeout time.Duration
}

// ClientOption 配置 RelayClient
type ClientOption func(*RelayClient)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *RelayClient) {
		if c != nil {
			r.http = c
		}
	}
}

// RelayClient 通过 HTTP 调用中继端点
type RelayClient struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewRelayClient 创建客户端。URL 缺失或不是绝对地址时返回配置错误。
func NewRelayClient(cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) (*RelayClient, error) {
	u, err := url.Parse(cfg.URL)
	if cfg.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, types.NewError(types.ErrConfiguration, "relay URL must be an absolute URL").
			WithCause(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RelayClient{
		cfg:    cfg,
		http:   tlsutil.StreamingHTTPClient(cfg.HeaderTimeout),
		logger: logger.With(zap.String("component", "relay_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type relayRequest struct {
	Messages []types.ChatMessage `json:"messages"`
}

type relayError struct {
	Error string `json:"error"`
}

// Stream 发送对话并返回 SSE 正文
func (c *RelayClient) Stream(ctx context.Context, msgs []types.ChatMessage) (io.ReadCloser, error) {
	payload, err := json.Marshal(relayRequest{Messages: msgs})
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode relay request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "build relay request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.PublishableKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.PublishableKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.NewError(types.ErrUpstreamError, MsgNoResponse).
			WithCause(err).
			WithRetryable(true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, types.NewError(types.ErrEmptyResponse, MsgEmptyBody).
			WithHTTPStatus(resp.StatusCode)
	}

	return resp.Body, nil
}

// statusError 把中继的错误响应映射为结构化错误，消息优先取正文中的 error 字段
func (c *RelayClient) statusError(resp *http.Response) *types.Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := MsgNoResponse
	var body relayError
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}

	var e *types.Error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case http.StatusPaymentRequired:
		e = types.NewError(types.ErrQuotaExceeded, msg)
	default:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(resp.StatusCode >= 500)
	}
	e.WithHTTPStatus(resp.StatusCode)
	if len(raw) > 0 {
		e.WithCause(fmt.Errorf("relay status %d: %s", resp.StatusCode, raw))
	}

	c.logger.Warn("relay returned error status",
		zap.Int("status", resp.StatusCode),
		zap.String("error", msg))
	return e
}

// isCanceled ctx 取消导致的错误
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
