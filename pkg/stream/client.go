// Package stream 实现检测服务的 SSE 客户端
//
// 每个会话在后台 goroutine 中读取 "data:" 行，解码为快照后
// 通过主线程回调队列投递，网格状态只在主线程中被修改。
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/detection"
	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/metrics"
)

const (
	dataPrefix = "data:"
	// maxLoggedPayload 解码失败时日志中保留的负载长度
	maxLoggedPayload = 512
)

// Enqueuer 主线程回调队列
type Enqueuer interface {
	Enqueue(fn func()) bool
}

// SnapshotHandler 在主线程中处理解码后的快照
type SnapshotHandler func(snapshot detection.Snapshot)

// Client SSE 客户端，按目标地址管理会话
type Client struct {
	cfg        Config
	httpClient *http.Client
	enqueuer   Enqueuer
	handler    SnapshotHandler
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewClient 创建 SSE 客户端
//
// 参数：
//   - cfg: 客户端配置
//   - httpClient: HTTP 客户端，为 nil 时使用无超时的客户端（流没有长度上限）
//   - enqueuer: 主线程回调队列
//   - handler: 快照处理函数，在主线程中调用
//   - logger: 日志器
//
// 返回：
//   - *Client: 客户端实例
//   - error: 配置无效时返回包装了 ErrInvalidConfig 的错误
func NewClient(cfg Config, httpClient *http.Client, enqueuer Enqueuer, handler SnapshotHandler, logger zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if enqueuer == nil || handler == nil {
		return nil, fmt.Errorf("%w: enqueuer and handler are required", ErrInvalidConfig)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		enqueuer:   enqueuer,
		handler:    handler,
		logger:     logging.Component(logger, "stream"),
		sessions:   make(map[string]*Session),
	}, nil
}

// URLFor 返回某用户的流地址：BaseURL + StreamPath + "/" + userID
func (c *Client) URLFor(userID string) string {
	return c.cfg.BaseURL + c.cfg.StreamPath + "/" + url.PathEscape(userID)
}

// Connect 为某用户启动流式会话
// 同一目标地址的旧会话会先被取消并等待其退出，保证每个目标最多一个活动会话。
// ctx 结束等同于取消会话。
func (c *Client) Connect(ctx context.Context, userID string) (*Session, error) {
	target := c.URLFor(userID)
	session := newSession(ctx, target, userID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.Cancel()
		return nil, ErrClientClosed
	}
	prev := c.sessions[target]
	c.sessions[target] = session
	c.wg.Add(1)
	c.mu.Unlock()

	if prev != nil {
		c.logger.Info().Str("target", target).Str("previous", prev.ID.String()).Msg("replacing existing session")
		prev.Cancel()
		<-prev.Done()
	}

	c.logger.Info().Str("target", target).Str("session", session.ID.String()).Msg("stream session started")
	go c.run(session)
	return session, nil
}

// Session 返回某用户当前的会话
func (c *Client) Session(userID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[c.URLFor(userID)]
	return s, ok
}

// ActiveSessions 返回活动会话数量
func (c *Client) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// CancelAll 取消所有会话并等待其退出
func (c *Client) CancelAll() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
	for _, s := range sessions {
		<-s.Done()
	}
}

// Close 关闭客户端，之后的 Connect 返回 ErrClientClosed
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.CancelAll()
	c.wg.Wait()
}

// run 会话循环：连接失败或流结束后等待固定间隔重连，直到被取消
func (c *Client) run(s *Session) {
	defer c.wg.Done()
	defer close(s.done)
	defer c.forget(s)

	log := c.logger.With().Str("target", s.Target).Str("session", s.ID.String()).Logger()

	for {
		err := c.attempt(s)
		if s.Cancelled() || errors.Is(err, ErrCancelled) {
			log.Info().Int("attempts", s.Attempts()).Msg("stream session cancelled")
			return
		}

		log.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("stream connection failure")

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			log.Info().Int("attempts", s.Attempts()).Msg("stream session cancelled while waiting to reconnect")
			return
		case <-timer.C:
		}

		metrics.RecordStreamReconnect()
		log.Info().Msg("reconnecting")
	}
}

// forget 从会话表中移除已结束的会话（已被替换的不受影响）
func (c *Client) forget(s *Session) {
	c.mu.Lock()
	if c.sessions[s.Target] == s {
		delete(c.sessions, s.Target)
	}
	c.mu.Unlock()
}

// attempt 执行一次连接并读取直到流结束
// 被取消时返回 ErrCancelled，其他情况返回包装了 ErrConnection 的错误
func (c *Client) attempt(s *Session) error {
	s.attempts.Add(1)

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.Target, nil)
	if err != nil {
		metrics.RecordStreamAttempt("failed")
		return fmt.Errorf("%w: build request: %v", ErrConnection, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	s.connecting.Store(true)
	resp, err := c.httpClient.Do(req)
	s.connecting.Store(false)
	if err != nil {
		if s.Cancelled() {
			return ErrCancelled
		}
		metrics.RecordStreamAttempt("failed")
		return fmt.Errorf("%w: %s: %v", ErrConnection, s.Target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordStreamAttempt("failed")
		return fmt.Errorf("%w: %s: status %d", ErrConnection, s.Target, resp.StatusCode)
	}

	metrics.RecordStreamAttempt("connected")
	c.logger.Info().Str("target", s.Target).Str("session", s.ID.String()).Int("attempt", s.Attempts()).Msg("stream connected")

	return c.readStream(s, resp.Body)
}

// readStream 逐行读取事件流，直到流结束、出错或会话取消
func (c *Client) readStream(s *Session, body io.Reader) error {
	reader := bufio.NewReader(body)
	for {
		if s.Cancelled() {
			return ErrCancelled
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			if deliverErr := c.handleLine(s, line); deliverErr != nil {
				return deliverErr
			}
		}
		if err != nil {
			if s.Cancelled() {
				return ErrCancelled
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %s: stream closed by server", ErrConnection, s.Target)
			}
			return fmt.Errorf("%w: %s: read: %v", ErrConnection, s.Target, err)
		}
	}
}

// handleLine 处理一行：非 data 行忽略，空负载跳过，解码失败记录警告后继续
func (c *Client) handleLine(s *Session, line string) error {
	line = strings.TrimRight(line, "\r\n")
	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	snapshot, err := detection.DecodeSnapshot([]byte(payload))
	if err != nil {
		metrics.RecordDecodeFailure()
		c.logger.Warn().
			Err(err).
			Str("target", s.Target).
			Str("payload", truncate(payload, maxLoggedPayload)).
			Msg("failed to decode snapshot")
		return nil
	}

	return c.deliver(s, snapshot)
}

// deliver 将快照投递到主线程，会话取消后不再投递
func (c *Client) deliver(s *Session, snapshot detection.Snapshot) error {
	if s.Cancelled() {
		return ErrCancelled
	}

	handler := c.handler
	ok := c.enqueuer.Enqueue(func() {
		if s.Cancelled() {
			return
		}
		handler(snapshot)
	})
	if !ok {
		c.logger.Warn().Str("target", s.Target).Msg("dispatcher rejected snapshot")
		return nil
	}

	metrics.RecordSnapshot()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
