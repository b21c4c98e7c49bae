package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/stream"
)

// ClientConfig 农场客户端配置
//
// 配置文件位置: data/client.yaml（也支持 .toml）
type ClientConfig struct {
	Server  ServerConfig   `yaml:"server" toml:"server"`
	Stream  StreamConfig   `yaml:"stream" toml:"stream"`
	Farm    FarmConfig     `yaml:"farm" toml:"farm"`
	Log     logging.Config `yaml:"log" toml:"log"`
	Metrics MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Storage StorageConfig  `yaml:"storage" toml:"storage"`
}

// ServerConfig 检测服务地址
type ServerConfig struct {
	// BaseURL 检测服务地址，如 "http://127.0.0.1:8000"
	BaseURL string `yaml:"baseURL" toml:"baseURL"`
	// StreamPath SSE 路径，默认 "/detection_stream"
	StreamPath string `yaml:"streamPath" toml:"streamPath"`
	UserID     string `yaml:"userID" toml:"userID"`
	// ExportURL 收获记录上报地址，为空时不上报
	ExportURL string `yaml:"exportURL" toml:"exportURL"`
}

// StreamConfig 流式连接参数
type StreamConfig struct {
	// ReconnectDelaySeconds 断线重连间隔（秒）
	ReconnectDelaySeconds float64 `yaml:"reconnectDelaySeconds" toml:"reconnectDelaySeconds"`
}

// FarmConfig 农场展示参数
type FarmConfig struct {
	// CellSize 每个格子的像素尺寸
	CellSize float64 `yaml:"cellSize" toml:"cellSize"`
	// TickRate 每秒帧数（无窗口模式使用）
	TickRate int `yaml:"tickRate" toml:"tickRate"`
}

// MetricsConfig 指标服务
type MetricsConfig struct {
	// Addr 监听地址，为空时不启动
	Addr string `yaml:"addr" toml:"addr"`
}

// StorageConfig 本地存储
type StorageConfig struct {
	// AppName gdata 应用名
	AppName string `yaml:"appName" toml:"appName"`
}

// MaxTickRate 无窗口模式的最高帧率
const MaxTickRate = 1000

// DefaultClientConfig 返回默认配置
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server: ServerConfig{
			BaseURL:    "http://127.0.0.1:8000",
			StreamPath: stream.DefaultStreamPath,
		},
		Stream: StreamConfig{
			ReconnectDelaySeconds: stream.DefaultReconnectDelay.Seconds(),
		},
		Farm: FarmConfig{
			CellSize: 64,
			TickRate: 60,
		},
		Log: logging.DefaultConfig(),
		Storage: StorageConfig{
			AppName: "farm_client",
		},
	}
}

// LoadClientConfig 加载客户端配置
//
// 按扩展名选择格式：.toml 使用 TOML，其他使用 YAML。
// 未出现在文件中的字段保留默认值。
//
// 参数:
//   - path: 配置文件路径
//
// 返回:
//   - *ClientConfig: 加载成功后的配置
//   - error: 读取、解析或验证失败时返回错误
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return cfg, nil
}

// Validate 验证配置有效性
func (c *ClientConfig) Validate() error {
	if err := validateHTTPURL("server.baseURL", c.Server.BaseURL); err != nil {
		return err
	}
	if c.Server.ExportURL != "" {
		if err := validateHTTPURL("server.exportURL", c.Server.ExportURL); err != nil {
			return err
		}
	}
	if c.Stream.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("stream.reconnectDelaySeconds must be positive, got %v", c.Stream.ReconnectDelaySeconds)
	}
	if c.Farm.CellSize <= 0 {
		return fmt.Errorf("farm.cellSize must be positive, got %v", c.Farm.CellSize)
	}
	if c.Farm.TickRate <= 0 || c.Farm.TickRate > MaxTickRate {
		return fmt.Errorf("farm.tickRate must be in [1, %d], got %d", MaxTickRate, c.Farm.TickRate)
	}
	if strings.TrimSpace(c.Storage.AppName) == "" {
		return fmt.Errorf("storage.appName is required")
	}
	if _, ok := logging.ParseLevel(c.Log.Level); c.Log.Level != "" && !ok {
		return fmt.Errorf("log.level %q is not a valid level", c.Log.Level)
	}
	return nil
}

// ReconnectDelay 返回重连间隔
func (c *ClientConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.Stream.ReconnectDelaySeconds * float64(time.Second))
}

// StreamClientConfig 转换为流式客户端配置
func (c *ClientConfig) StreamClientConfig() stream.Config {
	return stream.Config{
		BaseURL:        c.Server.BaseURL,
		StreamPath:     c.Server.StreamPath,
		ReconnectDelay: c.ReconnectDelay(),
	}
}

// TickInterval 返回无窗口模式的帧间隔
func (c *ClientConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Farm.TickRate)
}

// decodeFile 按扩展名解析 YAML 或 TOML 文件
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}
