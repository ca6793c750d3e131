// =============================================================================
// 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/Younthing/eagent-sub001/pipeline"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		Judge:     DefaultJudgeConfig(),
		Bank:      BankConfig{},
		Metrics:   DefaultMetricsConfig(),
		Pipeline:  pipeline.DefaultConfig(),
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
		ServiceName:  "eagent",
		SampleRate:   0.1,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（本地 sqlite 文件）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: "sqlite",
		Name:   "eagent.db",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		KeyPrefix: "eagent",
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Scope:     "deterministic",
		Dir:       ".eagent",
		Backend:   "sql",
		PruneDays: 0,
	}
}

// DefaultJudgeConfig 返回默认裁决模型配置
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{
		Provider: "",
		Timeout:  2 * time.Minute,
		QPS:      0,
		Burst:    1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "eagent"}
}
