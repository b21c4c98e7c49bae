package config

import (
	"fmt"
	"time"

	"github.com/decker502/farm/pkg/logging"
)

// SimulatorConfig 模拟检测服务配置
//
// 配置文件位置: data/detectsim.yaml（也支持 .toml）
type SimulatorConfig struct {
	// Addr 监听地址
	Addr string `yaml:"addr" toml:"addr"`
	// UserID 自动推送快照的用户，为空时只响应手动推送
	UserID string `yaml:"userID" toml:"userID"`
	// Rows/Cols 模拟农场尺寸
	Rows int `yaml:"rows" toml:"rows"`
	Cols int `yaml:"cols" toml:"cols"`
	// IntervalSeconds 自动推送间隔（秒）
	IntervalSeconds float64 `yaml:"intervalSeconds" toml:"intervalSeconds"`
	// Seed 随机种子，0 表示使用当前时间
	Seed int64 `yaml:"seed" toml:"seed"`

	Log logging.Config `yaml:"log" toml:"log"`
}

// DefaultSimulatorConfig 返回默认配置
func DefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		Addr:            ":8000",
		Rows:            5,
		Cols:            9,
		IntervalSeconds: 2,
		Log:             logging.DefaultConfig(),
	}
}

// LoadSimulatorConfig 加载模拟服务配置，格式规则同 LoadClientConfig
func LoadSimulatorConfig(path string) (*SimulatorConfig, error) {
	cfg := DefaultSimulatorConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load simulator config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	return cfg, nil
}

// Validate 验证配置有效性
func (c *SimulatorConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("rows and cols must be positive, got %dx%d", c.Rows, c.Cols)
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("intervalSeconds must be positive, got %v", c.IntervalSeconds)
	}
	return nil
}

// Interval 返回自动推送间隔
func (c *SimulatorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}
