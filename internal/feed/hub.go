// Package feed 在进程内分发信息流变更事件。
package feed

import (
	"context"
	"sync"

	"lostfound-go/internal/model"
	"lostfound-go/pkg/log"
)

// Listener 在 Broadcast 时被同步调用，用于必须执行的动作（如重置对话）。
type Listener func(ctx context.Context, event model.FeedEvent)

// Hub 把事件同步交给 Listener，并异步推送给订阅通道。
// 订阅通道容量为 1：积压时合并为一次刷新，因为订阅方总是重新拉取完整列表。
type Hub struct {
	mu        sync.RWMutex
	listeners []Listener
	subs      map[uint64]chan model.FeedEvent
	nextID    uint64
}

// NewHub 创建一个空的 Hub。
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan model.FeedEvent)}
}

// OnEvent 注册一个同步监听器。
func (h *Hub) OnEvent(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Subscribe 返回事件通道和取消函数。取消后通道被关闭。
func (h *Hub) Subscribe() (<-chan model.FeedEvent, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan model.FeedEvent, 1)
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers 返回当前订阅数量。
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast 分发一个事件。
func (h *Hub) Broadcast(ctx context.Context, event model.FeedEvent) {
	h.mu.RLock()
	listeners := append([]Listener(nil), h.listeners...)
	h.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, event)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			// 已有待处理的刷新
		}
	}
	log.Infof("[FeedHub] 事件已分发, type: %s, items: %v, subscribers: %d", event.Type, event.ItemIDs, len(h.subs))
}

// Publish 使 Hub 可直接作为单实例部署下的事件发布者。
func (h *Hub) Publish(ctx context.Context, event model.FeedEvent) error {
	h.Broadcast(ctx, event)
	return nil
}
