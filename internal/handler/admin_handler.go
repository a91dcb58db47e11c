package handler

import (
	"errors"
	"net/http"
	"strconv"

	"lostfound-go/internal/service"
	"lostfound-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 处理分页获取用户列表的请求。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	userList, err := h.adminService.ListUsers(page, size)
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": userList})
}

// SetRoleRequest 定义了修改用户角色 API 的请求体结构。
type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetUserRole 处理修改用户角色的请求。
func (h *AdminHandler) SetUserRole(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的用户 ID", "data": nil})
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	user, err := h.adminService.SetUserRole(uint(userID), req.Role)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			status = http.StatusBadRequest
		case errors.Is(err, service.ErrUserNotFound):
			status = http.StatusNotFound
		default:
			log.Error("SetUserRole: 更新失败", err)
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "角色更新成功", "data": user.Profile()})
}

// ResetConversations 手动清空所有用户的对话。
func (h *AdminHandler) ResetConversations(c *gin.Context) {
	if err := h.adminService.ResetConversations(c.Request.Context()); err != nil {
		log.Error("ResetConversations: 清空失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清空对话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "所有对话已清空", "data": nil})
}
