// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"lostfound-go/internal/model"

	"gorm.io/gorm"
)

// ItemRepository 接口定义了信息流记录的持久化操作。
type ItemRepository interface {
	Create(item *model.Item) error
	FindByID(id uint) (*model.Item, error)
	ListNewest(limit int) ([]model.Item, error)
	Update(item *model.Item) error
	Delete(id uint) error
	// PruneBeyond 只保留最新的 keep 条记录，返回被删除的记录（仅含 ID 与图片对象名）。
	PruneBeyond(keep int) ([]model.Item, error)
}

// itemRepository 是 ItemRepository 接口的 GORM 实现。
type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository 创建一个新的 ItemRepository 实例。
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

// newestFirst 是信息流统一的排序：时间倒序，时间相同时按 ID 倒序。
const newestFirst = "timestamp desc, id desc"

// Create 在数据库中创建一条新记录。
func (r *itemRepository) Create(item *model.Item) error {
	return r.db.Create(item).Error
}

// FindByID 根据 ID 查找记录。
func (r *itemRepository) FindByID(id uint) (*model.Item, error) {
	var item model.Item
	if err := r.db.First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ListNewest 按时间倒序返回最多 limit 条记录。
func (r *itemRepository) ListNewest(limit int) ([]model.Item, error) {
	var items []model.Item
	err := r.db.Order(newestFirst).Limit(limit).Find(&items).Error
	return items, err
}

// Update 更新一条已存在的记录。
func (r *itemRepository) Update(item *model.Item) error {
	return r.db.Save(item).Error
}

// Delete 删除一条记录。
func (r *itemRepository) Delete(id uint) error {
	return r.db.Delete(&model.Item{}, id).Error
}

// PruneBeyond 删除超出上限的旧记录。
// MySQL 不支持单独的 OFFSET，这里先取出全部 ID 再在内存中截断。
func (r *itemRepository) PruneBeyond(keep int) ([]model.Item, error) {
	var items []model.Item
	if err := r.db.Select("id", "image_object").Order(newestFirst).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) <= keep {
		return nil, nil
	}
	stale := items[keep:]
	ids := make([]uint, 0, len(stale))
	for _, it := range stale {
		ids = append(ids, it.ID)
	}
	if err := r.db.Where("id IN ?", ids).Delete(&model.Item{}).Error; err != nil {
		return nil, err
	}
	return stale, nil
}
