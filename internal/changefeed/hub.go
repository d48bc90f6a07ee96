package changefeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultBufferSize = 64

// Hub 进程内事件分发
// Publish 从不阻塞：订阅方缓冲区写满即被关闭并标记为落后，由其自行全量重载
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seq    uint64
	buffer int
	closed bool
	logger *zap.Logger
}

// NewHub 创建 Hub，buffer 为每个订阅方的事件缓冲长度
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Publish 为事件分配序号并投递给所有订阅方
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.seq++
	ev.Seq = h.seq
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged.Store(true)
			h.removeLocked(sub)
			h.logger.Warn("订阅方处理过慢，已断开", zap.Uint64("seq", ev.Seq))
		}
	}
	return nil
}

// Subscribe 注册订阅；ctx 结束或调用 Close 时释放
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{ch: make(chan Event, h.buffer), hub: h}
	h.subs[sub] = struct{}{}
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	return sub, nil
}

// Subscribers 当前订阅方数量
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close 关闭 Hub 并断开所有订阅方
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Subscription 订阅句柄，持有者负责 Close
type Subscription struct {
	ch     chan Event
	hub    *Hub
	stop   func() bool
	lagged atomic.Bool
}

// Events 事件通道；订阅结束后通道关闭
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Lagged 是否因处理过慢被断开（此时本地状态可能缺失事件）
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Close 释放订阅，可重复调用
func (s *Subscription) Close() error {
	s.hub.mu.Lock()
	stop := s.stop
	s.hub.removeLocked(s)
	s.hub.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}
