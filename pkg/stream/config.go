package stream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultStreamPath 检测服务的 SSE 路径
	DefaultStreamPath = "/detection_stream"
	// DefaultReconnectDelay 连接断开后的重连间隔
	DefaultReconnectDelay = 5 * time.Second
	// DefaultUserAgent 请求头中的 User-Agent
	DefaultUserAgent = "farm-client/1.0"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid stream config")

// Config 流式客户端配置
type Config struct {
	// BaseURL 检测服务地址，如 "http://127.0.0.1:8000"
	BaseURL string
	// StreamPath SSE 路径，为空时使用 DefaultStreamPath
	StreamPath string
	// ReconnectDelay 重连间隔，为 0 时使用 DefaultReconnectDelay
	ReconnectDelay time.Duration
	UserAgent      string
}

// withDefaults 返回填充了默认值的配置副本
func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.StreamPath == "" {
		c.StreamPath = DefaultStreamPath
	}
	if !strings.HasPrefix(c.StreamPath, "/") {
		c.StreamPath = "/" + c.StreamPath
	}
	c.StreamPath = strings.TrimRight(c.StreamPath, "/")
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base URL %q: %v", ErrInvalidConfig, c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base URL %q must use http or https", ErrInvalidConfig, c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: base URL %q has no host", ErrInvalidConfig, c.BaseURL)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("%w: reconnect delay must not be negative", ErrInvalidConfig)
	}
	return nil
}
