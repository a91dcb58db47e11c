package model

import "time"

// feed 事件类型
const (
	FeedEventCreated = "created"
	FeedEventDeleted = "deleted"
)

// FeedEvent 表示信息流发生了变化，订阅方据此刷新列表或重置对话。
type FeedEvent struct {
	Type      string    `json:"type"`
	ItemIDs   []uint    `json:"item_ids"`
	PrunedIDs []uint    `json:"pruned_ids,omitempty"` // 新增记录时一并裁剪掉的旧记录
	Timestamp time.Time `json:"timestamp"`
}

// NewFeedEvent 创建一个带当前时间的事件。
func NewFeedEvent(eventType string, ids ...uint) FeedEvent {
	return FeedEvent{Type: eventType, ItemIDs: ids, Timestamp: time.Now()}
}
