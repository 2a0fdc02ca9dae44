package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/naya/api/handlers"
	"github.com/BaSui01/naya/internal/ctxkeys"
	"github.com/BaSui01/naya/internal/metrics"
	"github.com/BaSui01/naya/relay"
	"github.com/BaSui01/naya/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// statusWriter 记录状态码与字节数，并保留 Flusher 以支持 SSE
// =============================================================================

type statusWriter struct {
	http.ResponseWriter
	statusCode   int
	wroteHeader  bool
	bytesWritten int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	if sw, ok := w.(*statusWriter); ok {
		return sw
	}
	return &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush 中继逐块回传依赖它
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 使用
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// =============================================================================
// Recovery / RequestID / SecurityHeaders
// =============================================================================

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
					handlers.WriteErrorMessage(w, r, http.StatusInternalServerError,
						types.ErrInternalError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 为每个请求分配 X-Request-ID，客户端已提供时沿用
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

// SecurityHeaders 添加通用安全响应头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// RequestLogger / MetricsMiddleware / OTelTracing
// =============================================================================

// RequestLogger 请求日志中间件。流式响应在连接结束后才记录。
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.statusCode),
				zap.Int64("bytes", sw.bytesWritten),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id, ok := ctxkeys.RequestID(r.Context()); ok {
				fields = append(fields, zap.String("request_id", id))
			}
			if id, ok := ctxkeys.TraceID(r.Context()); ok {
				fields = append(fields, zap.String("trace_id", id))
			}
			logger.Info("request", fields...)
		})
	}
}

// MetricsMiddleware 通过 metrics.Collector 记录 HTTP 请求指标
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}
			collector.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), sw.statusCode,
				time.Since(start), requestSize, sw.bytesWritten)
		})
	}
}

// routeLabel 把未知路径折叠为一个标签，控制 Prometheus 基数
func routeLabel(path string) string {
	switch path {
	case "/health", "/healthz", "/ready", "/version", "/metrics",
		"/api/v1/chat", "/api/v1/history":
		return path
	}
	return "other"
}

// OTelTracing 为每个请求创建 server span，并把 trace ID 放入 context
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			tracer := otel.Tracer("github.com/BaSui01/naya/http")
			ctx, span := tracer.Start(ctx, r.Method+" "+routeLabel(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
			}

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", sw.statusCode))
			if sw.statusCode >= 500 {
				span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
			}
		})
	}
}

// =============================================================================
// CORS
// =============================================================================

// CORS 跨域中间件。allowOrigin 为 "*" 时允许任意来源，为空时不设置任何 CORS 头。
// 中继端点自行处理预检，这里只用于其余 JSON 接口。
func CORS(allowOrigin, allowHeaders string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// RateLimiter
// =============================================================================

const (
	visitorTTL       = 3 * time.Minute
	visitorSweepTick = time.Minute
)

// ipLimiter 每个来源 IP 一个令牌桶，闲置超过 visitorTTL 的桶被回收
type ipLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		limit:    rate.Limit(rps),
		burst:    max(burst, 1),
		buckets:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[ip] = b
	}
	l.lastSeen[ip] = now
	l.mu.Unlock()
	return b.AllowN(now, 1)
}

func (l *ipLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, seen := range l.lastSeen {
		if now.Sub(seen) > visitorTTL {
			delete(l.lastSeen, ip)
			delete(l.buckets, ip)
		}
	}
}

func (l *ipLimiter) sweepUntil(ctx context.Context) {
	ticker := time.NewTicker(visitorSweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// =============================================================================
// Rejector 中间件拒绝请求时的响应体
// =============================================================================

// Rejector 写出限流、鉴权失败等拒绝响应。JSON 接口用 Response 信封，
// 聊天端点用中继的 {"error": "..."}，客户端只认这一种形状。
type Rejector func(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, msg string)

// EnvelopeRejector handlers.Response 信封
func EnvelopeRejector(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, msg string) {
	handlers.WriteErrorMessage(w, r, status, code, msg, nil)
}

// RelayRejector 中继错误体；429 使用与网关限流相同的提示语
func RelayRejector(w http.ResponseWriter, _ *http.Request, status int, _ types.ErrorCode, msg string) {
	if status == http.StatusTooManyRequests {
		msg = relay.MsgRateLimited
	}
	relay.WriteError(w, status, msg)
}

func orEnvelope(reject Rejector) Rejector {
	if reject == nil {
		return EnvelopeRejector
	}
	return reject
}

// RateLimiter 按 IP 限流，rps <= 0 时关闭；预检请求不消耗配额。reject 为 nil 时用信封。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger, reject Rejector) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	reject = orEnvelope(reject)
	limiter := newIPLimiter(rps, burst)
	go limiter.sweepUntil(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodOptions && !limiter.allow(clientIP(r), time.Now()) {
				logger.Debug("rate limited", zap.String("ip", clientIP(r)), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				reject(w, r, http.StatusTooManyRequests,
					types.ErrRateLimited, "Rate limits exceeded, please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// BearerJWT 校验客户端携带的可公开密钥
// =============================================================================

// BearerJWT 用 HS256 密钥校验 Authorization: Bearer 中的 JWT。
// 可公开密钥本身就是签名的 JWT，因此中继可以在转发前拒绝伪造的调用方。
// secret 为空时直接放行。预检请求与 skipPaths 不做校验。
func BearerJWT(secret string, skipPaths []string, logger *zap.Logger, reject Rejector) Middleware {
	if secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	reject = orEnvelope(reject)
	skipSet := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = struct{}{}
	}

	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(token *jwt.Token) (any, error) { return key, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipSet[r.URL.Path]; skip || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(tokenStr) == "" {
				reject(w, r, http.StatusUnauthorized, types.ErrUnauthorized,
					"missing or malformed Authorization header")
				return
			}

			token, err := parser.Parse(strings.TrimSpace(tokenStr), keyFunc)
			if err != nil || !token.Valid {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				logger.Debug("JWT validation failed", zap.Error(err))
				reject(w, r, http.StatusUnauthorized, types.ErrUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
