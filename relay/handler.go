package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/naya/streaming"
	"github.com/BaSui01/naya/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// 🔀 流式聊天中继
// =============================================================================

const (
	DefaultAllowOrigin  = "*"
	DefaultAllowHeaders = "authorization, x-client-info, apikey, content-type"

	defaultMaxBodyBytes = 1 << 20
	defaultReadSize     = 4096
)

// Recorder 中继指标，*metrics.Collector 实现了它
type Recorder interface {
	RecordRelayRequest(outcome string, upstreamStatus int, headerWait time.Duration)
	RecordRelayStream(bytes int64, fragments int, sawDone bool, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRelayRequest(string, int, time.Duration)     {}
func (nopRecorder) RecordRelayStream(int64, int, bool, time.Duration) {}

// Recorders 把同一次记录分发给多个 Recorder，nil 会被跳过
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nopRecorder{}
	case 1:
		return out[0]
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordRelayRequest(outcome string, upstreamStatus int, headerWait time.Duration) {
	for _, r := range m {
		r.RecordRelayRequest(outcome, upstreamStatus, headerWait)
	}
}

func (m multiRecorder) RecordRelayStream(bytes int64, fragments int, sawDone bool, duration time.Duration) {
	for _, r := range m {
		r.RecordRelayStream(bytes, fragments, sawDone, duration)
	}
}

// HandlerConfig 中继处理器配置
type HandlerConfig struct {
	AllowOrigin  string
	AllowHeaders string
	MaxBodyBytes int64
	ReadSize     int
}

// ChatRequest 客户端请求体
type ChatRequest struct {
	Messages []types.ChatMessage `json:"messages"`
}

// Validate 校验请求。system 消息只由中继根据人设注入，客户端不得提交。
func (r ChatRequest) Validate() error {
	for i, m := range r.Messages {
		if !m.Role.Valid() || m.Role == types.RoleSystem {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
	}
	return nil
}

// Handler 把聊天请求转发给上游网关，并原样回传 SSE 字节流。
// 中继不解析、不缓冲正文，只旁路统计。
type Handler struct {
	cfg      HandlerConfig
	upstream *Upstream
	persona  *Persona
	metrics  Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewHandler 创建中继处理器
func NewHandler(cfg HandlerConfig, upstream *Upstream, persona *Persona, recorder Recorder, logger *zap.Logger) *Handler {
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = DefaultAllowOrigin
	}
	if cfg.AllowHeaders == "" {
		cfg.AllowHeaders = DefaultAllowHeaders
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = defaultReadSize
	}
	if persona == nil {
		persona = NewPersona("")
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		upstream: upstream,
		persona:  persona,
		metrics:  recorder,
		tracer:   otel.Tracer("github.com/BaSui01/naya/relay"),
		logger:   logger.With(zap.String("component", "relay")),
	}
}

// ServeHTTP 处理 POST（中继）与 OPTIONS（预检）
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// 未配置密钥时不发起任何上游调用
	if !h.upstream.Configured() {
		h.logger.Error("gateway API key is not configured")
		h.metrics.RecordRelayRequest("not_configured", 0, 0)
		WriteError(w, http.StatusInternalServerError, MsgNotConfigured)
		return
	}

	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid chat request body", zap.Error(err))
		h.metrics.RecordRelayRequest("invalid_request", 0, 0)
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RecordRelayRequest("invalid_request", 0, 0)
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("processing chat request", zap.Int("messages", len(req.Messages)))

	ctx, span := h.tracer.Start(r.Context(), "relay.chat", trace.WithAttributes(
		attribute.Int("chat.messages", len(req.Messages)),
		attribute.String("gen_ai.request.model", h.upstream.Model()),
	))
	defer span.End()

	start := time.Now()
	body, status, err := h.upstream.Open(ctx, h.withPersona(req.Messages))
	wait := time.Since(start)
	if status > 0 {
		span.SetAttributes(attribute.Int("gen_ai.gateway.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")

		e, ok := types.AsError(err)
		if !ok {
			e = types.NewError(types.ErrInternalError, MsgInternal).WithCause(err).
				WithHTTPStatus(http.StatusInternalServerError)
		}
		if status == 0 {
			h.logger.Error("upstream request failed", zap.Error(err))
		}
		h.metrics.RecordRelayRequest(outcomeOf(e, status), status, wait)
		WriteError(w, e.HTTPStatus, e.Message)
		return
	}
	defer body.Close()
	h.metrics.RecordRelayRequest("ok", status, wait)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stats, err := h.pipe(w, body)
	elapsed := time.Since(start)
	h.metrics.RecordRelayStream(stats.Bytes, stats.Fragments, stats.SawDone, elapsed)
	span.SetAttributes(
		attribute.Int64("relay.stream.bytes", stats.Bytes),
		attribute.Int("relay.stream.fragments", stats.Fragments),
		attribute.Bool("relay.stream.done", stats.SawDone),
	)

	switch {
	case err == nil:
		h.logger.Debug("stream relayed",
			zap.Int64("bytes", stats.Bytes),
			zap.Int("fragments", stats.Fragments),
			zap.Bool("done", stats.SawDone),
			zap.Duration("duration", elapsed))
	case r.Context().Err() != nil:
		// 客户端断开，上游请求随 context 一起取消
		h.logger.Info("client disconnected during stream", zap.Int64("bytes", stats.Bytes))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream interrupted")
		h.logger.Warn("stream interrupted", zap.Error(err), zap.Int64("bytes", stats.Bytes))
	}
}

// WithCORS 先写 CORS 头再交给 next，路由前置中间件的拒绝响应浏览器也能读到
func (h *Handler) WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.setCORS(w.Header())
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) setCORS(hdr http.Header) {
	hdr.Set("Access-Control-Allow-Origin", h.cfg.AllowOrigin)
	hdr.Set("Access-Control-Allow-Headers", h.cfg.AllowHeaders)
}

// withPersona 在客户端消息前插入系统提示词
func (h *Handler) withPersona(msgs []types.ChatMessage) []types.ChatMessage {
	out := make([]types.ChatMessage, 0, len(msgs)+1)
	out = append(out, types.ChatMessage{Role: types.RoleSystem, Content: h.persona.Prompt()})
	return append(out, msgs...)
}

// pipe 逐块写回并立即 flush，字节不做任何改写
func (h *Handler) pipe(w http.ResponseWriter, body io.Reader) (streaming.Stats, error) {
	rc := http.NewResponseController(w)
	tap := streaming.NewTap(nil)
	buf := make([]byte, h.cfg.ReadSize)

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				_ = tap.Close()
				return tap.Stats(), werr
			}
			_, _ = tap.Write(buf[:n])
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				_ = tap.Close()
				return tap.Stats(), ferr
			}
		}
		if rerr != nil {
			_ = tap.Close()
			if errors.Is(rerr, io.EOF) {
				return tap.Stats(), nil
			}
			return tap.Stats(), rerr
		}
	}
}

func outcomeOf(e *types.Error, status int) string {
	switch e.Code {
	case types.ErrConfiguration:
		return "not_configured"
	case types.ErrRateLimited:
		return "rate_limited"
	case types.ErrQuotaExceeded:
		return "payment_required"
	case types.ErrUpstreamTimeout:
		return "timeout"
	}
	if status > 0 {
		return "gateway_error"
	}
	return "transport_error"
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError 中继端点的错误体 {"error": "..."}
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
