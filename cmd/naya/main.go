// =============================================================================
// Naya 主入口
// =============================================================================
// 流式聊天中继服务 + 终端聊天客户端
//
// 使用方法:
//
//	naya serve                       # 启动中继服务
//	naya serve --config config.yaml  # 指定配置文件
//	naya chat                        # 终端聊天
//	naya history list                # 查看聊天历史
//	naya migrate up                  # 运行数据库迁移
//	naya version                     # 显示版本信息
//	naya health                      # 健康检查
// =============================================================================

// @title Naya API
// @version 1.0.0
// @description Naya 是 AISA 旅游助手的流式聊天中继。
// @description
// @description ## Features
// @description - 把对话转发给 OpenAI 兼容网关并原样回传 SSE
// @description - 可选的聊天历史持久化（SQL、Redis、MongoDB）
// @description - 健康检查与 Prometheus 指标

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer <publishable key>

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/naya/api/handlers"
	"github.com/BaSui01/naya/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// EnvPrefix 环境变量前缀，如 NAYA_UPSTREAM_API_KEY
const EnvPrefix = "NAYA"

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "chat":
		err = runChat(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "migrate":
		err = runMigrate(ctx, os.Args[2:])
	case "version":
		printVersion(os.Stdout)
	case "health":
		err = runHealthCheck(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig 默认值 → YAML → NAYA_* 环境变量，最后校验
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix(EnvPrefix)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Naya",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	return NewServer(cfg, nil, logger).Run(ctx)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Check /ready (dependencies) instead of /health")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/health"
	if *ready {
		path = "/ready"
	}
	status, err := checkHealth(ctx, &http.Client{Timeout: *timeout}, *addr+path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Println(status)
	return nil
}

// checkHealth 返回服务报告的状态，非 200 视为失败
func checkHealth(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var status handlers.HealthStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&status); err != nil {
		return "", fmt.Errorf("decode health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		for name, c := range status.Checks {
			if c.Status != "pass" {
				return "", fmt.Errorf("status %d: %s: %s", resp.StatusCode, name, c.Message)
			}
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return status.Status, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Naya %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Naya - AISA tourism chat relay

Usage:
  naya <command> [options]

Commands:
  serve     Start the chat relay server
  chat      Chat with Naya in the terminal
  history   List or clear persisted chat history
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve', 'chat' and 'history':
  --config <path>   Path to configuration file (YAML)

Environment:
  NAYA_UPSTREAM_API_KEY      Gateway key (LOVABLE_API_KEY is also accepted)
  NAYA_SESSION_RELAY_URL     Relay endpoint used by 'naya chat'
  NAYA_HISTORY_BACKEND       none, memory, sql, redis or mongo

Examples:
  naya serve
  naya serve --config /etc/naya/config.yaml
  naya chat --url http://localhost:8080/api/v1/chat
  naya history list --limit 20
  naya migrate up
  naya health --addr http://localhost:8080 --ready
  naya version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    !cfg.EnableCaller,
	}

	opts := []zap.Option{}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		zapConfig.DisableStacktrace = true
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
