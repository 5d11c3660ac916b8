package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
)

// UseCaseHandler 负责处理用例相关的 API 请求。
type UseCaseHandler struct {
	ucService service.UseCaseService
}

// NewUseCaseHandler 创建一个新的 UseCaseHandler 实例。
func NewUseCaseHandler(ucService service.UseCaseService) *UseCaseHandler {
	return &UseCaseHandler{ucService: ucService}
}

// CreateUseCaseRequest 定义了创建用例 API 的请求体结构。
type CreateUseCaseRequest struct {
	Name            string                `json:"name" binding:"required"`
	IngestionType   string                `json:"ingestionType" binding:"required"`
	IngestionConfig model.IngestionConfig `json:"ingestionConfig"`
}

// Create 在指定命名空间下创建用例。
func (h *UseCaseHandler) Create(c *gin.Context) {
	nsID, err := pathID(c, "id")
	if err != nil {
		return
	}
	var req CreateUseCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：name 和 ingestionType 不能为空",
		})
		return
	}

	user, _ := currentUser(c)
	var ownerID uint
	if user != nil {
		ownerID = user.ID
	}

	uc, err := h.ucService.Create(nsID, req.Name, ownerID, req.IngestionType, req.IngestionConfig)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, uc)
}

// Get 按 ID 获取用例。
func (h *UseCaseHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	uc, err := h.ucService.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, uc)
}

// List 获取命名空间下的用例列表。
func (h *UseCaseHandler) List(c *gin.Context) {
	nsID, err := pathID(c, "id")
	if err != nil {
		return
	}
	list, err := h.ucService.List(nsID, c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// UpdateIngestionRequest 定义了更新摄取配置的请求体结构。
type UpdateIngestionRequest struct {
	IngestionType   string                `json:"ingestionType" binding:"required"`
	IngestionConfig model.IngestionConfig `json:"ingestionConfig"`
}

// UpdateIngestion 更新用例的摄取类型和配置。
func (h *UseCaseHandler) UpdateIngestion(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	var req UpdateIngestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：ingestionType 不能为空",
		})
		return
	}
	uc, err := h.ucService.UpdateIngestion(id, req.IngestionType, req.IngestionConfig)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, uc)
}

// SetActive 启停用例。
func (h *UseCaseHandler) SetActive(c *gin.Context) {
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
	uc, err := h.ucService.SetActive(id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, uc)
}

// Delete 级联删除用例。
func (h *UseCaseHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	if err := h.ucService.Delete(id, principalFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "UseCase deleted",
	})
}
