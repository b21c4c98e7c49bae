package stream

import "errors"

var (
	// ErrConnection 连接失败或流被中断，会触发重连
	ErrConnection = errors.New("stream connection failure")
	// ErrCancelled 会话被取消，是正常的结束状态，不会重连
	ErrCancelled = errors.New("stream session cancelled")
	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("stream client closed")
)
