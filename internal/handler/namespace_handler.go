package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
)

// NamespaceHandler 负责处理命名空间相关的 API 请求。
type NamespaceHandler struct {
	nsService service.NamespaceService
}

// NewNamespaceHandler 创建一个新的 NamespaceHandler 实例。
func NewNamespaceHandler(nsService service.NamespaceService) *NamespaceHandler {
	return &NamespaceHandler{nsService: nsService}
}

// CreateNamespaceRequest 定义了创建命名空间 API 的请求体结构。
type CreateNamespaceRequest struct {
	Name     string                  `json:"name" binding:"required"`
	Settings model.NamespaceSettings `json:"settings"`
}

// Create 处理创建命名空间的请求。
func (h *NamespaceHandler) Create(c *gin.Context) {
	var req CreateNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：name 不能为空",
		})
		return
	}

	user, _ := currentUser(c)
	var ownerID uint
	if user != nil {
		ownerID = user.ID
	}

	ns, err := h.nsService.Create(req.Name, ownerID, req.Settings)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ns)
}

// Get 按 ID 获取命名空间。
func (h *NamespaceHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	ns, err := h.nsService.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ns)
}

// List 获取命名空间列表，?active=true 时仅返回启用的。
func (h *NamespaceHandler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	list, err := h.nsService.List(activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// UpdateSettingsRequest 定义了更新命名空间配置的请求体结构。
type UpdateSettingsRequest struct {
	Settings model.NamespaceSettings `json:"settings" binding:"required"`
}

// UpdateSettings 整体替换命名空间的配置文档。
func (h *NamespaceHandler) UpdateSettings(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：settings 不能为空",
		})
		return
	}
	ns, err := h.nsService.UpdateSettings(id, req.Settings)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ns)
}

// SetActiveRequest 定义了启停实体的请求体结构。
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive 启停命名空间。
func (h *NamespaceHandler) SetActive(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：active 不能为空",
		})
		return
	}
	ns, err := h.nsService.SetActive(id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ns)
}

// Delete 级联删除命名空间。
func (h *NamespaceHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	if err := h.nsService.Delete(id, principalFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Namespace deleted",
	})
}

// pathID 解析路径中的数字 ID，非法时直接写出 400 响应。
func pathID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的路径参数 " + name,
		})
		return 0, strconv.ErrSyntax
	}
	return uint(id), nil
}
