// =============================================================================
// 📦 Naya 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Upstream:  DefaultUpstreamConfig(),
		Persona:   DefaultPersonaConfig(),
		Session:   DefaultSessionConfig(),
		Voice:     DefaultVoiceConfig(),
		History:   DefaultHistoryConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Mongo:     DefaultMongoConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
		AllowOrigin:     "*",
		AllowHeaders:    "authorization, x-client-info, apikey, content-type",
		MaxBodyBytes:    1 << 20,
	}
}

// DefaultUpstreamConfig 返回默认上游网关配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Endpoint:      "https://ai.gateway.lovable.dev/v1/chat/completions",
		Model:         "google/gemini-2.5-flash",
		HeaderTimeout: 30 * time.Second,
	}
}

// DefaultPersonaConfig 返回默认人设配置
func DefaultPersonaConfig() PersonaConfig {
	return PersonaConfig{
		Watch:        false,
		PollInterval: time.Second,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RelayURL:       "http://localhost:8080/api/v1/chat",
		DedupWindow:    3000 * time.Millisecond,
		SpeechEnabled:  true,
		RestoreHistory: true,
	}
}

// DefaultVoiceConfig 返回默认语音配置
func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		KeepAlive: 30 * time.Second,
	}
}

// DefaultHistoryConfig 返回默认历史配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:     "memory",
		Limit:       50,
		AutoMigrate: true,
		Timeout:     5 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "naya",
		Password:        "",
		Name:            "naya",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "naya:",
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "naya",
		Collection:     "chat_history",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "naya",
		SampleRate:   0.1,
	}
}
