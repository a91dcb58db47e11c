package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"lostfound-go/internal/model"
	"lostfound-go/internal/service"
	"lostfound-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理问答请求，支持 REST 与 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService) *ChatHandler {
	return &ChatHandler{chatService: chatService, userService: userService}
}

// AskRequest 定义了提问 API 的请求体结构。
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask 处理一次提问，回答总是以 200 返回，错误也已转换为可展示的文本。
func (h *ChatHandler) Ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "问题不能为空", "data": nil})
		return
	}

	answer := h.chatService.Ask(c.Request.Context(), user, strings.TrimSpace(req.Question))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": model.ChatReply{Answer: answer}})
}

// Reset 清空当前用户的对话，相当于重新打开页面。
func (h *ChatHandler) Reset(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chatService.Reset(c.Request.Context(), user); err != nil {
		log.Error("Reset chat: 重置失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重置对话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "对话已重置", "data": nil})
}

// wsQuestion 兼容纯文本与 {"question": "..."} 两种消息。
type wsQuestion struct {
	Question string `json:"question"`
}

func parseQuestion(message []byte) string {
	text := strings.TrimSpace(string(message))
	if strings.HasPrefix(text, "{") {
		var q wsQuestion
		if err := json.Unmarshal(message, &q); err == nil {
			return strings.TrimSpace(q.Question)
		}
	}
	return text
}

// Handle 处理一个传入的 WebSocket 连接：每个问题返回一帧回答和一帧完成通知。
func (h *ChatHandler) Handle(c *gin.Context) {
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

	log.Infof("聊天 WebSocket 连接已建立，用户: %s", user.Email)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		question := parseQuestion(message)
		if question == "" {
			continue
		}

		answer := h.chatService.Ask(c.Request.Context(), user, question)
		if err := conn.WriteJSON(gin.H{"type": "answer", "answer": answer}); err != nil {
			log.Warnf("写入 WebSocket 回答失败: %v", err)
			return
		}
		now := time.Now()
		completion := gin.H{
			"type":      "completion",
			"status":    "finished",
			"message":   "响应已完成",
			"timestamp": now.UnixMilli(),
			"date":      now.Format("2006-01-02T15:04:05"),
		}
		if err := conn.WriteJSON(completion); err != nil {
			log.Warnf("写入 WebSocket 完成通知失败: %v", err)
			return
		}
	}
}
