package handler

import (
	"context"
	"net/http"
	"time"

	"lostfound-go/internal/model"
	"lostfound-go/internal/service"
	"lostfound-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// writeWait 单次写入 WebSocket 的超时时间。
const writeWait = 10 * time.Second

// FeedSubscriber 提供信息流变更通知，由 feed.Hub 实现。
type FeedSubscriber interface {
	Subscribe() (<-chan model.FeedEvent, func())
}

// FeedHandler 通过 WebSocket 推送实时信息流。
type FeedHandler struct {
	feedService service.FeedService
	userService service.UserService
	hub         FeedSubscriber
}

// NewFeedHandler 创建一个新的 FeedHandler。
func NewFeedHandler(feedService service.FeedService, userService service.UserService, hub FeedSubscriber) *FeedHandler {
	return &FeedHandler{feedService: feedService, userService: userService, hub: hub}
}

// FeedFilter 是客户端发送的筛选条件，发送后立即收到一次按新条件筛选的列表。
type FeedFilter struct {
	Category string `json:"category"`
	Search   string `json:"search"`
}

// feedFrame 是推送给客户端的一帧。
type feedFrame struct {
	Type    string                `json:"type"` // snapshot 或 error
	Reason  string                `json:"reason,omitempty"`
	Data    *service.FilterResult `json:"data,omitempty"`
	Message string                `json:"message,omitempty"`
}

// Handle 建立连接后先推送当前列表，之后每次信息流变化或筛选条件变化都推送一次完整列表。
func (h *FeedHandler) Handle(c *gin.Context) {
	user, _, err := h.userService.Authenticate(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	// 读协程只负责接收筛选条件，所有写操作都在当前协程完成
	filters := make(chan FeedFilter, 1)
	go func() {
		defer stop()
		for {
			var f FeedFilter
			if err := conn.ReadJSON(&f); err != nil {
				if _, ok := err.(*websocket.CloseError); !ok {
					log.Warnf("读取信息流筛选条件失败: %v", err)
				}
				return
			}
			select {
			case filters <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Infof("信息流 WebSocket 连接已建立，用户: %s", user.Email)

	current := FeedFilter{}
	if !h.push(ctx, conn, current, "connected") {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-filters:
			current = f
			if !h.push(ctx, conn, current, "filter") {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !h.push(ctx, conn, current, ev.Type) {
				return
			}
		}
	}
}

// push 发送一帧，写失败时返回 false。
func (h *FeedHandler) push(ctx context.Context, conn *websocket.Conn, filter FeedFilter, reason string) bool {
	frame := feedFrame{Type: "snapshot", Reason: reason}
	result, err := h.feedService.Filter(ctx, filter.Category, filter.Search)
	if err != nil {
		frame = feedFrame{Type: "error", Reason: reason, Message: err.Error()}
	} else {
		frame.Data = &result
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		log.Warnf("推送信息流失败: %v", err)
		return false
	}
	return true
}
