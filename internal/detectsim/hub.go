package detectsim

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/logging"
)

// subscriberBuffer 每个订阅者缓存的快照数量，满了之后丢弃新快照
const subscriberBuffer = 16

// Subscription 一个 SSE 连接的订阅
type Subscription struct {
	UserID string
	C      <-chan []byte

	ch   chan []byte
	hub  *Hub
	once sync.Once
}

// Close 取消订阅
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub 按用户分发快照
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

// NewHub 创建分发中心
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logging.Component(logger, "hub"),
	}
}

// Subscribe 订阅某用户的快照
func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan []byte, subscriberBuffer)
	sub := &Subscription{UserID: userID, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	n := len(h.subs[userID])
	h.mu.Unlock()

	h.logger.Info().Str("user", userID).Int("subscribers", n).Msg("subscriber joined")
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	set := h.subs[sub.UserID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
	n := len(set)
	h.mu.Unlock()

	h.logger.Info().Str("user", sub.UserID).Int("subscribers", n).Msg("subscriber left")
}

// Publish 向某用户的所有订阅者推送一条负载，返回成功投递的数量
// 订阅者缓冲区已满时丢弃，不阻塞发布方
func (h *Hub) Publish(userID string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			h.logger.Warn().Str("user", userID).Msg("subscriber buffer full, snapshot dropped")
		}
	}
	return delivered
}

// Subscribers 返回某用户的订阅者数量
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
