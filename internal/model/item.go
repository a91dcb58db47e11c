// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 物品类型
const (
	ItemTypeFound = "found"
	ItemTypeLost  = "lost"
)

// Item 是信息流中的一条失物/招领记录。JSON 字段名与前端约定保持一致。
type Item struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemName      string    `gorm:"type:varchar(255);not null" json:"itemName"`
	LocationFound string    `gorm:"type:varchar(255);not null" json:"locationFound"`
	ContactInfo   string    `gorm:"type:varchar(255);not null" json:"contactInfo"`
	ItemType      string    `gorm:"type:varchar(16);not null;default:found" json:"itemType"`
	PostedBy      string    `gorm:"type:varchar(255);not null" json:"postedBy"`
	PostedByName  string    `gorm:"type:varchar(255);not null" json:"postedByName"`
	PosterID      uint      `gorm:"index;not null" json:"posterId"`
	ImageURL      *string   `gorm:"type:mediumtext" json:"imageUrl"`
	ImageObject   string    `gorm:"type:varchar(255)" json:"-"` // MinIO 中归档的对象名
	Timestamp     time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Item) TableName() string {
	return "found_items"
}

// IsLost 判断是否为失物。
func (i Item) IsLost() bool {
	return i.ItemType == ItemTypeLost
}

// ValidItemType 判断类型是否合法。
func ValidItemType(t string) bool {
	return t == ItemTypeFound || t == ItemTypeLost
}
