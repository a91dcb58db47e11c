package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lostfound-go/internal/model"
)

// 列表分类
const (
	CategoryAll   = "all"
	CategoryFound = model.ItemTypeFound
	CategoryLost  = model.ItemTypeLost
)

// 筛选结果状态，前端据此显示空状态或“无匹配”提示。
const (
	FilterStateEmpty     = "empty"
	FilterStateNoResults = "no_results"
	FilterStateOK        = "ok"
)

// ErrInvalidCategory 分类参数不是 all/found/lost。
var ErrInvalidCategory = errors.New("category must be all, found or lost")

// FilterResult 是一次筛选的结果。
type FilterResult struct {
	Items []model.Item `json:"items"`
	State string       `json:"state"`
	Total int          `json:"total"`
}

// ParseCategory 规范化分类参数，空值视为 all。
func ParseCategory(raw string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(raw))
	switch c {
	case "", CategoryAll:
		return CategoryAll, nil
	case CategoryFound, CategoryLost:
		return c, nil
	default:
		return "", ErrInvalidCategory
	}
}

// FilterItems 按分类和关键字筛选，关键字不区分大小写地匹配物品名或地点。
// items 的顺序保持不变。
func FilterItems(items []model.Item, category, search string) FilterResult {
	term := strings.ToLower(strings.TrimSpace(search))
	matched := make([]model.Item, 0, len(items))
	for _, item := range items {
		if category != "" && category != CategoryAll && item.ItemType != category {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(item.ItemName), term) &&
			!strings.Contains(strings.ToLower(item.LocationFound), term) {
			continue
		}
		matched = append(matched, item)
	}

	state := FilterStateOK
	switch {
	case len(items) == 0:
		state = FilterStateEmpty
	case len(matched) == 0:
		state = FilterStateNoResults
	}
	return FilterResult{Items: matched, State: state, Total: len(items)}
}

// FormatTimeAgo 把发布时间格式化为相对时间。
func FormatTimeAgo(ts, now time.Time) string {
	if ts.IsZero() {
		return "Unknown time"
	}
	diff := now.Sub(ts)
	mins := int(diff / time.Minute)
	hours := int(diff / time.Hour)
	days := int(diff / (24 * time.Hour))

	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return plural(mins, "minute")
	case hours < 24:
		return plural(hours, "hour")
	default:
		return plural(days, "day")
	}
}

func plural(n int, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

// BuildKnowledgeSnapshot 把信息流渲染为对话首轮使用的知识库文本，每条记录一行。
func BuildKnowledgeSnapshot(items []model.Item, now time.Time) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		kind := "FOUND"
		if item.IsLost() {
			kind = "LOST"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s, Location: %s, Contact: %s, Posted by: %s, Time: %s",
			kind, item.ItemName, item.LocationFound, item.ContactInfo, item.PostedByName, FormatTimeAgo(item.Timestamp, now)))
	}
	return strings.Join(lines, "\n")
}
