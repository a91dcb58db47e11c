package model

import "time"

// ChatMessage 代表存储在 Redis 中的一条对话轮次。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "model"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatReply 是返回给前端的回答。
type ChatReply struct {
	Answer string `json:"answer"`
}
