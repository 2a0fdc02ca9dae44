package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/naya/internal/tlsutil"
	"github.com/BaSui01/naya/types"
	"go.uber.org/zap"
)

// 固定的对外错误文案
const (
	MsgNotConfigured   = "AI service is not configured"
	MsgRateLimited     = "Terlalu banyak permintaan. Mohon tunggu sebentar."
	MsgPaymentRequired = "Layanan AI memerlukan kredit tambahan."
	MsgInternal        = "Terjadi kesalahan pada sistem"
)

const (
	DefaultEndpoint = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultModel    = "google/gemini-2.5-flash"

	defaultHeaderTimeout = 30 * time.Second
	maxErrorBody         = 4096
)

// UpstreamConfig 上游网关配置
type UpstreamConfig struct {
	Endpoint      string
	APIKey        string
	Model         string
	HeaderTimeout time.Duration
}

// Upstream OpenAI 兼容的流式补全网关客户端。
// 每次 Open 只发一个请求，不重试。
type Upstream struct {
	cfg    UpstreamConfig
	client *http.Client
	logger *zap.Logger
}

// UpstreamOption 配置 Upstream
type UpstreamOption func(*Upstream)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(c *http.Client) UpstreamOption {
	return func(u *Upstream) {
		if c != nil {
			u.client = c
		}
	}
}

// NewUpstream 创建上游客户端
func NewUpstream(cfg UpstreamConfig, logger *zap.Logger, opts ...UpstreamOption) *Upstream {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaultHeaderTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &Upstream{
		cfg:    cfg,
		client: tlsutil.StreamingHTTPClient(cfg.HeaderTimeout),
		logger: logger.With(zap.String("component", "upstream")),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Configured 是否配置了网关密钥
func (u *Upstream) Configured() bool {
	return strings.TrimSpace(u.cfg.APIKey) != ""
}

// Model 返回请求使用的模型标识
func (u *Upstream) Model() string {
	return u.cfg.Model
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []types.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

// Open 发起流式补全请求，成功时返回上游 SSE 正文，由调用方关闭。
// 非 2xx 返回 *types.Error，HTTPStatus 为应回给客户端的状态码。
func (u *Upstream) Open(ctx context.Context, messages []types.ChatMessage) (io.ReadCloser, int, error) {
	if !u.Configured() {
		return nil, 0, types.NewError(types.ErrConfiguration, MsgNotConfigured).
			WithHTTPStatus(http.StatusInternalServerError)
	}

	payload, err := json.Marshal(completionRequest{
		Model:    u.cfg.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, 0, types.NewError(types.ErrInternalError, MsgInternal).WithCause(err).
			WithHTTPStatus(http.StatusInternalServerError)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, types.NewError(types.ErrInternalError, MsgInternal).WithCause(err).
			WithHTTPStatus(http.StatusInternalServerError)
	}
	req.Header.Set("Authorization", "Bearer "+u.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := u.client.Do(req)
	if err != nil {
		code := types.ErrUpstreamError
		if ctx.Err() == nil && isTimeout(err) {
			code = types.ErrUpstreamTimeout
		}
		return nil, 0, types.NewError(code, MsgInternal).WithCause(err).
			WithHTTPStatus(http.StatusInternalServerError).WithRetryable(true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		u.logger.Error("AI gateway error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, resp.StatusCode, MapGatewayStatus(resp.StatusCode, string(body))
	}

	return resp.Body, resp.StatusCode, nil
}

// MapGatewayStatus 把上游非 2xx 状态映射为对外错误：
// 429 与 402 原样透出并带固定文案，其余一律 500。
func MapGatewayStatus(status int, body string) *types.Error {
	var cause error
	if body != "" {
		cause = fmt.Errorf("gateway body: %s", body)
	}

	switch status {
	case http.StatusTooManyRequests:
		return &types.Error{
			Code:       types.ErrRateLimited,
			Message:    MsgRateLimited,
			HTTPStatus: status,
			Retryable:  true,
			Cause:      cause,
		}
	case http.StatusPaymentRequired:
		return &types.Error{
			Code:       types.ErrQuotaExceeded,
			Message:    MsgPaymentRequired,
			HTTPStatus: status,
			Cause:      cause,
		}
	default:
		return &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    fmt.Sprintf("AI Gateway error: %d", status),
			HTTPStatus: http.StatusInternalServerError,
			Retryable:  status >= 500,
			Cause:      cause,
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
