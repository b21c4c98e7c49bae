package stream

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session 一个流式连接会话
// 会话在后台 goroutine 中循环连接，直到被取消
type Session struct {
	// ID 会话标识，用于日志关联
	ID uuid.UUID
	// Target 完整的流地址
	Target string
	UserID string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	connecting atomic.Bool
	attempts   atomic.Int64
}

func newSession(parent context.Context, target, userID string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:     uuid.New(),
		Target: target,
		UserID: userID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel 取消会话：读循环在下一行读取时退出，不再投递快照，也不会重连
func (s *Session) Cancel() {
	s.cancel()
}

// Cancelled 会话是否已取消（显式取消或父 context 结束）
func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Done 会话循环退出后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Connecting 是否正在建立连接（请求已发出，尚未收到响应头）
func (s *Session) Connecting() bool {
	return s.connecting.Load()
}

// Attempts 返回已发起的连接次数
func (s *Session) Attempts() int {
	return int(s.attempts.Load())
}
