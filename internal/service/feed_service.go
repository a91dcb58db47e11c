package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lostfound-go/internal/model"
	"lostfound-go/internal/repository"
	"lostfound-go/pkg/imaging"
	"lostfound-go/pkg/log"
	"lostfound-go/pkg/storage"

	"gorm.io/gorm"
)

// presignExpiry 图片临时链接的有效期。
const presignExpiry = time.Hour

var (
	ErrMissingFields    = errors.New("item name, location and contact info are required")
	ErrInvalidItemType  = errors.New("item type must be found or lost")
	ErrItemNotFound     = errors.New("item not found")
	ErrForbidden        = errors.New("only the poster or an admin can delete this item")
	ErrImageNotArchived = errors.New("item has no archived image")
)

// EventPublisher 发布信息流变更事件，单实例时为 feed.Hub，多实例时为 Kafka 生产者。
type EventPublisher interface {
	Publish(ctx context.Context, event model.FeedEvent) error
}

// PostItemRequest 是发布一条记录所需的输入。
type PostItemRequest struct {
	ItemName      string
	LocationFound string
	ContactInfo   string
	ItemType      string
	Image         *imaging.Upload // 可选
}

// FeedService 接口定义了信息流相关的业务操作。
type FeedService interface {
	Post(ctx context.Context, user *model.User, req PostItemRequest) (*model.Item, error)
	List(ctx context.Context) ([]model.Item, error)
	Filter(ctx context.Context, category, search string) (FilterResult, error)
	Delete(ctx context.Context, user *model.User, id uint) error
	KnowledgeSnapshot(ctx context.Context) (string, error)
	ImageURL(ctx context.Context, id uint) (string, error)
}

type feedService struct {
	itemRepo   repository.ItemRepository
	normalizer *imaging.Normalizer
	store      storage.ImageStore // 可为 nil
	publisher  EventPublisher
	maxPosts   int
	now        func() time.Time
}

// NewFeedService 创建一个新的 FeedService 实例。store 为 nil 时不归档图片。
func NewFeedService(itemRepo repository.ItemRepository, normalizer *imaging.Normalizer, store storage.ImageStore, publisher EventPublisher, maxPosts int) FeedService {
	if maxPosts <= 0 {
		maxPosts = 50
	}
	return &feedService{
		itemRepo:   itemRepo,
		normalizer: normalizer,
		store:      store,
		publisher:  publisher,
		maxPosts:   maxPosts,
		now:        time.Now,
	}
}

// Post 校验输入、压缩图片、写入记录，然后裁剪旧记录并发布事件。
func (s *feedService) Post(ctx context.Context, user *model.User, req PostItemRequest) (*model.Item, error) {
	name := strings.TrimSpace(req.ItemName)
	location := strings.TrimSpace(req.LocationFound)
	contact := strings.TrimSpace(req.ContactInfo)
	if name == "" || location == "" || contact == "" {
		return nil, ErrMissingFields
	}
	itemType := strings.ToLower(strings.TrimSpace(req.ItemType))
	if itemType == "" {
		itemType = model.ItemTypeFound
	}
	if !model.ValidItemType(itemType) {
		return nil, ErrInvalidItemType
	}

	// 图片失败时整个发布失败，不写入任何记录
	var encoded *imaging.EncodedImage
	if req.Image != nil {
		var err error
		encoded, err = s.normalizer.Normalize(*req.Image)
		if err != nil {
			log.Warnf("[FeedService] 图片处理失败, user: %s, error: %v", user.Email, err)
			return nil, err
		}
	}

	item := &model.Item{
		ItemName:      name,
		LocationFound: location,
		ContactInfo:   contact,
		ItemType:      itemType,
		PostedBy:      user.Email,
		PostedByName:  user.Name(),
		PosterID:      user.ID,
		Timestamp:     s.now(),
	}
	if encoded != nil {
		item.ImageURL = &encoded.DataURL
	}
	if err := s.itemRepo.Create(item); err != nil {
		return nil, fmt.Errorf("保存记录失败: %w", err)
	}
	log.Infof("[FeedService] 新记录已发布, id: %d, type: %s, user: %s", item.ID, item.ItemType, user.Email)

	if encoded != nil {
		s.archiveImage(ctx, item, encoded.JPEG)
	}

	// 新增与裁剪合并为一个事件，订阅方只重置一次对话
	event := model.NewFeedEvent(model.FeedEventCreated, item.ID)
	event.PrunedIDs = s.prune(ctx)
	s.publish(ctx, event)
	return item, nil
}

// archiveImage 把压缩后的 JPEG 归档到对象存储，失败只记录日志。
func (s *feedService) archiveImage(ctx context.Context, item *model.Item, jpeg []byte) {
	if s.store == nil {
		return
	}
	objectName := storage.ItemObjectName(item.ID)
	if err := s.store.PutImage(ctx, objectName, jpeg, "image/jpeg"); err != nil {
		log.Errorf("[FeedService] 图片归档失败, id: %d, error: %v", item.ID, err)
		return
	}
	item.ImageObject = objectName
	if err := s.itemRepo.Update(item); err != nil {
		log.Errorf("[FeedService] 更新图片对象名失败, id: %d, error: %v", item.ID, err)
	}
}

// prune 只保留最新的 maxPosts 条记录并返回被删除的 ID，失败只记录日志。
func (s *feedService) prune(ctx context.Context) []uint {
	stale, err := s.itemRepo.PruneBeyond(s.maxPosts)
	if err != nil {
		log.Errorf("[FeedService] 清理旧记录失败: %v", err)
		return nil
	}
	if len(stale) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(stale))
	for _, it := range stale {
		ids = append(ids, it.ID)
		s.removeImage(ctx, it.ImageObject)
	}
	log.Infof("[FeedService] 已清理 %d 条旧记录: %v", len(ids), ids)
	return ids
}

func (s *feedService) removeImage(ctx context.Context, objectName string) {
	if s.store == nil || objectName == "" {
		return
	}
	if err := s.store.RemoveImage(ctx, objectName); err != nil {
		log.Warnf("[FeedService] 删除归档图片失败, object: %s, error: %v", objectName, err)
	}
}

func (s *feedService) publish(ctx context.Context, event model.FeedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Errorf("[FeedService] 发布 feed 事件失败, type: %s, error: %v", event.Type, err)
	}
}

// List 返回最新的 maxPosts 条记录。
func (s *feedService) List(ctx context.Context) ([]model.Item, error) {
	items, err := s.itemRepo.ListNewest(s.maxPosts)
	if err != nil {
		return nil, fmt.Errorf("查询信息流失败: %w", err)
	}
	return items, nil
}

// Filter 读取信息流并按分类、关键字筛选。
func (s *feedService) Filter(ctx context.Context, category, search string) (FilterResult, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return FilterResult{}, err
	}
	items, err := s.List(ctx)
	if err != nil {
		return FilterResult{}, err
	}
	return FilterItems(items, c, search), nil
}

// Delete 删除一条记录，仅发布者本人或管理员可操作。
func (s *feedService) Delete(ctx context.Context, user *model.User, id uint) error {
	item, err := s.findItem(id)
	if err != nil {
		return err
	}
	if item.PosterID != user.ID && user.Role != model.RoleAdmin {
		return ErrForbidden
	}
	if err := s.itemRepo.Delete(id); err != nil {
		return fmt.Errorf("删除记录失败: %w", err)
	}
	s.removeImage(ctx, item.ImageObject)
	log.Infof("[FeedService] 记录已删除, id: %d, by: %s", id, user.Email)
	s.publish(ctx, model.NewFeedEvent(model.FeedEventDeleted, id))
	return nil
}

// KnowledgeSnapshot 渲染当前信息流的知识库文本。
func (s *feedService) KnowledgeSnapshot(ctx context.Context) (string, error) {
	items, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return BuildKnowledgeSnapshot(items, s.now()), nil
}

// ImageURL 返回归档图片的临时链接。
func (s *feedService) ImageURL(ctx context.Context, id uint) (string, error) {
	item, err := s.findItem(id)
	if err != nil {
		return "", err
	}
	if s.store == nil || item.ImageObject == "" {
		return "", ErrImageNotArchived
	}
	return s.store.PresignedURL(ctx, item.ImageObject, presignExpiry)
}

func (s *feedService) findItem(id uint) (*model.Item, error) {
	item, err := s.itemRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("查询记录失败: %w", err)
	}
	return item, nil
}
