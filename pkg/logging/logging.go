// Package logging 统一创建 zerolog 日志器
//
// 各组件通过 Component 派生带 component 字段的子日志器，
// 日志级别可由配置文件或环境变量 FARM_LOG_LEVEL 覆盖。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// 环境变量
const (
	EnvLogLevel  = "FARM_LOG_LEVEL"
	EnvLogFormat = "FARM_LOG_FORMAT"
)

// Config 日志配置
type Config struct {
	Level  string `yaml:"level" toml:"level"`   // trace/debug/info/warn/error/disabled
	Format string `yaml:"format" toml:"format"` // console 或 json
}

// DefaultConfig 返回默认日志配置
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// New 创建日志器并设置为全局默认日志器
// 参数:
//   - app: 应用名，写入每条日志的 app 字段
//   - cfg: 日志配置，环境变量优先
//
// 返回:
//   - zerolog.Logger: 创建的日志器
func New(app string, cfg Config) zerolog.Logger {
	applyEnvOverrides(&cfg)
	logger := NewWithWriter(app, cfg, os.Stdout)
	log.Logger = logger
	return logger
}

// NewWithWriter 创建写入指定输出的日志器（不修改全局日志器）
func NewWithWriter(app string, cfg Config, out io.Writer) zerolog.Logger {
	var w io.Writer = out
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
}

// Component 派生带 component 字段的子日志器
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// ParseLevel 解析日志级别字符串
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if _, ok := ParseLevel(raw); ok {
			cfg.Level = raw
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogFormat)); raw != "" {
		cfg.Format = raw
	}
}
