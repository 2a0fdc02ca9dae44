package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查
// =============================================================================
// /health 与 /healthz 只说明进程存活；/ready 并发执行注册的依赖检查
// （网关密钥、历史存储），任一失败返回 503。

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	checkPass       = "pass"
	checkFail       = "fail"
)

// HealthCheck 依赖检查
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// VersionInfo 构建时注入的版本信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthStatus /health 与 /ready 的响应体，`naya health` 也解析它
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type HealthHandler struct {
	logger  *zap.Logger
	version VersionInfo
	timeout time.Duration

	mu     sync.RWMutex
	checks []HealthCheck
}

func NewHealthHandler(logger *zap.Logger, version VersionInfo) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		version: version,
		timeout: 5 * time.Second,
	}
}

// RegisterCheck nil 被忽略
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	if check == nil {
		return
	}
	h.mu.Lock()
	h.checks = append(h.checks, check)
	h.mu.Unlock()
}

// HandleHealth 存活探针
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.status(statusHealthy, nil))
}

// HandleReady 就绪探针
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "依赖不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := h.Evaluate(r.Context())
	code := http.StatusOK
	if st.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, st)
}

// HandleVersion /version
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} Response "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.version)
}

// Evaluate 所有检查共享一个 timeout 截止时间
func (h *HealthHandler) Evaluate(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		overall = statusHealthy
	)
	// 检查失败不取消其余检查，所以不用 errgroup.WithContext
	var g errgroup.Group
	for _, c := range checks {
		g.Go(func() error {
			res := h.run(ctx, c)
			mu.Lock()
			results[c.Name()] = res
			if res.Status == checkFail {
				overall = statusUnhealthy
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return h.status(overall, results)
}

func (h *HealthHandler) run(ctx context.Context, c HealthCheck) CheckResult {
	start := time.Now()
	err := c.Check(ctx)
	latency := time.Since(start)
	if err == nil {
		return CheckResult{Status: checkPass, Latency: latency.String()}
	}
	h.logger.Warn("health check failed",
		zap.String("check", c.Name()),
		zap.Duration("latency", latency),
		zap.Error(err))
	return CheckResult{Status: checkFail, Message: err.Error(), Latency: latency.String()}
}

func (h *HealthHandler) status(s string, checks map[string]CheckResult) HealthStatus {
	return HealthStatus{
		Status:    s,
		Timestamp: time.Now().UTC(),
		Version:   h.version.Version,
		Checks:    checks,
	}
}

// CheckFunc 函数式 HealthCheck
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewCheck(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                    { return c.name }
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }
