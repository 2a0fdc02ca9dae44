package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/naya/api/handlers"
	"github.com/BaSui01/naya/config"
	"github.com/BaSui01/naya/history"
	"github.com/BaSui01/naya/internal/database"
	"github.com/BaSui01/naya/internal/metrics"
	"github.com/BaSui01/naya/internal/server"
	"github.com/BaSui01/naya/internal/telemetry"
	"github.com/BaSui01/naya/relay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装中继、历史接口、健康检查与指标端口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	otel      *telemetry.Providers

	persona  *relay.Persona
	upstream *relay.Upstream
	store    history.Store

	healthHandler  *handlers.HealthHandler
	historyHandler *handlers.HistoryHandler
	relayHandler   *relay.Handler

	watcher *config.FileWatcher

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建服务器。collector 为 nil 时使用 naya 命名空间新建。
func NewServer(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) *Server {
	if collector == nil {
		collector = metrics.NewCollector("naya", logger)
	}
	return &Server{cfg: cfg, collector: collector, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Run 初始化全部组件并阻塞到 ctx 取消或任一服务异常退出
func (s *Server) Run(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		s.cleanup()
		return err
	}
	defer s.cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}
	if s.watcher != nil {
		if err := s.watcher.Start(gctx); err != nil {
			s.logger.Warn("persona watcher not started", zap.Error(err))
		}
	}

	s.logger.Info("Naya relay started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("history_backend", s.cfg.History.Backend),
		zap.Bool("gateway_configured", s.upstream.Configured()),
		zap.Bool("telemetry", s.otel.Enabled()),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// init 按依赖顺序初始化
func (s *Server) init(ctx context.Context) error {
	// 1. OpenTelemetry（失败不阻止启动）
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	s.otel = providers

	// 2. 人设
	if err := s.initPersona(); err != nil {
		return err
	}

	// 3. 历史存储
	if err := s.initHistory(ctx); err != nil {
		return err
	}

	// 4. Handlers
	s.initHandlers()

	// 5. 服务器
	s.httpManager = server.NewManager("relay", s.routes(ctx), server.ConfigFrom(s.cfg.Server), s.logger)
	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager("metrics", mux, server.MetricsConfigFrom(s.cfg.Server), s.logger)
	}
	return nil
}

// initPersona 载入人设，配置了 watch 时文件变更会热替换提示词
func (s *Server) initPersona() error {
	s.persona = relay.NewPersona(s.cfg.Persona.Prompt)

	path := s.cfg.Persona.File
	if path == "" {
		return nil
	}
	if err := s.persona.LoadFile(path); err != nil {
		return fmt.Errorf("load persona: %w", err)
	}
	if !s.cfg.Persona.Watch {
		return nil
	}

	watcher, err := config.NewFileWatcher([]string{path},
		config.WithPollInterval(s.cfg.Persona.PollInterval),
		config.WithWatcherLogger(s.logger))
	if err != nil {
		return fmt.Errorf("watch persona: %w", err)
	}
	watcher.OnChange(s.reloadPersona)
	s.watcher = watcher
	return nil
}

// reloadPersona 文件被删除或读取失败时保留旧提示词
func (s *Server) reloadPersona(ev config.FileEvent) {
	if ev.Op == config.FileOpRemove {
		s.logger.Warn("persona file removed, keeping current prompt", zap.String("path", ev.Path))
		return
	}
	if err := s.persona.LoadFile(ev.Path); err != nil {
		s.logger.Warn("persona reload failed, keeping current prompt",
			zap.String("path", ev.Path), zap.Error(err))
		return
	}
	s.logger.Info("persona reloaded", zap.String("path", ev.Path), zap.String("op", ev.Op.String()))
}

func (s *Server) initHistory(ctx context.Context) error {
	store, err := history.NewStore(ctx, s.cfg, s.logger,
		history.WithCounter(history.NewTokenCounter("", s.logger)),
		history.WithPoolOptions(database.WithStatsReporter(func(st database.PoolStats) {
			s.collector.RecordDBConnections(s.cfg.Database.Driver, st.OpenConnections, st.Idle)
		})),
	)
	if err != nil {
		return fmt.Errorf("open chat history: %w", err)
	}
	s.store = history.Instrument(store, s.collector)
	return nil
}

func (s *Server) initHandlers() {
	s.upstream = relay.NewUpstream(relay.UpstreamConfig{
		Endpoint:      s.cfg.Upstream.Endpoint,
		APIKey:        s.cfg.Upstream.APIKey,
		Model:         s.cfg.Upstream.Model,
		HeaderTimeout: s.cfg.Upstream.HeaderTimeout,
	}, s.logger)
	if !s.upstream.Configured() {
		s.logger.Warn("gateway API key is not configured, chat requests will fail")
	}

	instruments, err := telemetry.NewRelayInstruments(nil)
	if err != nil {
		s.logger.Warn("otel relay instruments unavailable", zap.Error(err))
	}
	var otelRecorder relay.Recorder
	if instruments != nil {
		otelRecorder = instruments
	}

	s.relayHandler = relay.NewHandler(relay.HandlerConfig{
		AllowOrigin:  s.cfg.Server.AllowOrigin,
		AllowHeaders: s.cfg.Server.AllowHeaders,
		MaxBodyBytes: s.cfg.Server.MaxBodyBytes,
	}, s.upstream, s.persona, relay.Recorders(s.collector, otelRecorder), s.logger)

	s.historyHandler = handlers.NewHistoryHandler(s.store, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger, handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	s.healthHandler.RegisterCheck(handlers.NewCheck("gateway", func(context.Context) error {
		if !s.upstream.Configured() {
			return errors.New("gateway API key is not configured")
		}
		return nil
	}))
	if s.store != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("history", s.store.Ping))
	}
}

// routes 注册路由并套上中间件
func (s *Server) routes(ctx context.Context) http.Handler {
	authSkip := []string{"/health", "/healthz", "/ready", "/version"}

	// 聊天端点的拒绝响应也要带 CORS 头，并使用中继的错误体
	chat := s.relayHandler.WithCORS(Chain(s.relayHandler,
		BearerJWT(s.cfg.Server.JWTSecret, nil, s.logger, RelayRejector),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger, RelayRejector),
	))

	api := http.NewServeMux()
	api.Handle("/api/v1/history", CORS(s.cfg.Server.AllowOrigin, s.cfg.Server.AllowHeaders)(s.historyHandler))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion)
	mux.Handle("/api/v1/chat", chat)
	mux.Handle("/api/", BearerJWT(s.cfg.Server.JWTSecret, authSkip, s.logger, EnvelopeRejector)(api))

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
	)
}

// cleanup 释放已初始化的资源，可在部分初始化失败后调用
func (s *Server) cleanup() {
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close chat history failed", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(context.Background()); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	s.logger.Info("Naya relay stopped")
}
