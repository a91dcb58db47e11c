package handler

import (
	"errors"
	"net/http"
	"strconv"

	"lostfound-go/internal/service"
	"lostfound-go/pkg/imaging"
	"lostfound-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// multipartSlack 为表单字段与 multipart 边界预留的额外字节。
const multipartSlack = 1 << 20

// ItemHandler 负责处理信息流记录的发布、查询与删除。
type ItemHandler struct {
	feedService    service.FeedService
	maxUploadBytes int64
}

// NewItemHandler 创建一个新的 ItemHandler 实例。
func NewItemHandler(feedService service.FeedService, maxUploadBytes int64) *ItemHandler {
	return &ItemHandler{feedService: feedService, maxUploadBytes: maxUploadBytes}
}

// Create 处理 multipart 表单：itemName、locationFound、contactInfo、itemType 以及可选的 itemImage 文件。
func (h *ItemHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartSlack)
	if err := c.Request.ParseMultipartForm(h.maxUploadBytes + multipartSlack); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": http.StatusRequestEntityTooLarge, "message": imaging.ErrTooLarge.Error(), "data": nil})
			return
		}
		log.Warnf("Create item: 解析表单失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的表单数据", "data": nil})
		return
	}

	req := service.PostItemRequest{
		ItemName:      c.PostForm("itemName"),
		LocationFound: c.PostForm("locationFound"),
		ContactInfo:   c.PostForm("contactInfo"),
		ItemType:      c.PostForm("itemType"),
	}

	if c.Request.MultipartForm != nil {
		if files := c.Request.MultipartForm.File["itemImage"]; len(files) > 0 {
			fileHeader := files[0]
			file, err := fileHeader.Open()
			if err != nil {
				log.Error("Create item: 打开上传文件失败", err)
				c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取上传的图片", "data": nil})
				return
			}
			defer file.Close()
			req.Image = &imaging.Upload{
				Size:        fileHeader.Size,
				ContentType: fileHeader.Header.Get("Content-Type"),
				Body:        file,
			}
		}
	}

	item, err := h.feedService.Post(c.Request.Context(), user, req)
	if err != nil {
		status := postErrorStatus(err)
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Item posted successfully", "data": item})
}

// postErrorStatus 把发布失败的错误映射为 HTTP 状态码。
func postErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrInvalidItemType):
		return http.StatusBadRequest
	case errors.Is(err, imaging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, imaging.ErrNotAnImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, imaging.ErrDecode), errors.Is(err, imaging.ErrEncode), errors.Is(err, imaging.ErrStillTooLarge):
		return http.StatusUnprocessableEntity
	default:
		log.Error("Create item: 发布失败", err)
		return http.StatusInternalServerError
	}
}

// List 返回按 category 与 search 筛选后的信息流。
func (h *ItemHandler) List(c *gin.Context) {
	result, err := h.feedService.Filter(c.Request.Context(), c.Query("category"), c.Query("search"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCategory) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
			return
		}
		log.Error("List items: 查询失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取信息流失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// Delete 删除一条记录。
func (h *ItemHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := itemID(c)
	if !ok {
		return
	}

	if err := h.feedService.Delete(c.Request.Context(), user, id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrItemNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrForbidden):
			status = http.StatusForbidden
		default:
			log.Error("Delete item: 删除失败", err)
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Item deleted", "data": nil})
}

// ImageURL 返回归档图片的临时下载链接。
func (h *ItemHandler) ImageURL(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	url, err := h.feedService.ImageURL(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) || errors.Is(err, service.ErrImageNotArchived) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error(), "data": nil})
			return
		}
		log.Error("Item image: 生成链接失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "生成图片链接失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"url": url}})
}

func itemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的记录 ID", "data": nil})
		return 0, false
	}
	return uint(id), true
}
