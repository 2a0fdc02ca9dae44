// =============================================================================
// 📦 Naya 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("NAYA").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LegacyAPIKeyEnv 网关密钥的兼容环境变量名
const LegacyAPIKeyEnv = "LOVABLE_API_KEY"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Naya 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Upstream 上游 LLM 网关配置
	Upstream UpstreamConfig `yaml:"upstream" env:"UPSTREAM"`

	// Persona 人设（系统提示词）配置
	Persona PersonaConfig `yaml:"persona" env:"PERSONA"`

	// Session 客户端会话配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Voice 语音代理配置
	Voice VoiceConfig `yaml:"voice" env:"VOICE"`

	// History 聊天历史配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Mongo 配置
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不单独启动
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（SSE 长连接，默认 0 不限制）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发上限
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS
	AllowOrigin  string `yaml:"allow_origin" env:"ALLOW_ORIGIN"`
	AllowHeaders string `yaml:"allow_headers" env:"ALLOW_HEADERS"`
	// 请求体上限
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// Bearer JWT 校验密钥，为空时不校验
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// TLS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// UpstreamConfig 上游网关配置
type UpstreamConfig struct {
	// 完整的 chat/completions 端点
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 网关密钥
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 等待响应头的超时
	HeaderTimeout time.Duration `yaml:"header_timeout" env:"HEADER_TIMEOUT"`
}

// PersonaConfig 人设配置
type PersonaConfig struct {
	// 内联提示词，为空时使用内置人设
	Prompt string `yaml:"prompt" env:"PROMPT"`
	// 提示词文件，优先于 Prompt
	File string `yaml:"file" env:"FILE"`
	// 是否监听文件变更并热替换
	Watch bool `yaml:"watch" env:"WATCH"`
	// 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// SessionConfig 客户端会话配置（naya chat 使用）
type SessionConfig struct {
	// 中继地址
	RelayURL string `yaml:"relay_url" env:"RELAY_URL"`
	// 调用中继时携带的可公开密钥
	PublishableKey string `yaml:"publishable_key" env:"PUBLISHABLE_KEY"`
	// 语音重复抑制窗口
	DedupWindow time.Duration `yaml:"dedup_window" env:"DEDUP_WINDOW"`
	// 失败时追加的致歉文案
	Apology string `yaml:"apology" env:"APOLOGY"`
	// 是否朗读助手回复
	SpeechEnabled bool `yaml:"speech_enabled" env:"SPEECH_ENABLED"`
	// 启动时恢复历史
	RestoreHistory bool `yaml:"restore_history" env:"RESTORE_HISTORY"`
}

// VoiceConfig 语音代理配置
type VoiceConfig struct {
	// WebSocket 地址，为空时禁用语音
	AgentURL string `yaml:"agent_url" env:"AGENT_URL"`
	// 心跳间隔
	KeepAlive time.Duration `yaml:"keep_alive" env:"KEEP_ALIVE"`
}

// HistoryConfig 聊天历史配置
type HistoryConfig struct {
	// 存储后端: none, memory, sql, redis, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// 读取条数上限
	Limit int `yaml:"limit" env:"LIMIT"`
	// SQL 后端是否自动建表
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 单次操作超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 依次叠加默认值、YAML 与环境变量，最后跑自定义校验
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

func NewLoader() *Loader {
	return &Loader{envPrefix: "NAYA"}
}

// WithConfigPath 文件不存在时静默使用默认值
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加在内置 Validate 之外的检查，错误原样包装返回
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := readYAML(l.configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	if err := overlayEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if cfg.Upstream.APIKey == "" {
		cfg.Upstream.APIKey = os.Getenv(LegacyAPIKeyEnv)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// overlayEnv 按 env 标签拼出 PREFIX_SECTION_FIELD，嵌套结构体递归，空值跳过
func overlayEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := overlayEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" || !field.CanSet() {
			continue
		}
		if err := assign(field, raw); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeFor[time.Duration]()

// assign 字符串切片按逗号拆分，其他不支持的类型忽略
func assign(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	var err error
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		var b bool
		if b, err = strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if n, err = strconv.ParseInt(raw, 10, field.Type().Bits()); err == nil {
			field.SetInt(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		if n, err = strconv.ParseUint(raw, 10, field.Type().Bits()); err == nil {
			field.SetUint(n)
		}
	case reflect.Float32, reflect.Float64:
		var f float64
		if f, err = strconv.ParseFloat(raw, field.Type().Bits()); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return err
}

// MustLoad 启动期使用，失败 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 不读文件
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	historyBackends = map[string]bool{"none": true, "memory": true, "sql": true, "redis": true, "mongo": true}
	databaseDrivers = map[string]bool{"postgres": true, "mysql": true, "sqlite": true, "sqlite3": true}
	logLevels       = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 服务器
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	// 上游
	if u, err := url.Parse(c.Upstream.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "upstream endpoint must be an absolute URL")
	}
	if strings.TrimSpace(c.Upstream.Model) == "" {
		errs = append(errs, "upstream model is required")
	}

	// 会话
	if c.Session.DedupWindow < 0 {
		errs = append(errs, "session dedup_window must not be negative")
	}

	// 历史
	if !historyBackends[c.History.Backend] {
		errs = append(errs, fmt.Sprintf("unsupported history backend %q", c.History.Backend))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, "history limit must be positive")
	}
	if c.History.Backend == "sql" && !databaseDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	if c.History.Backend == "mongo" && c.Mongo.URI == "" {
		errs = append(errs, "mongo uri is required for the mongo history backend")
	}

	// 日志与遥测
	if !logLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite", "sqlite3":
		return d.Name
	default:
		return ""
	}
}
