package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
)

// PromptHandler 负责处理提示词相关的 API 请求。
type PromptHandler struct {
	promptService service.PromptService
}

// NewPromptHandler 创建一个新的 PromptHandler 实例。
func NewPromptHandler(promptService service.PromptService) *PromptHandler {
	return &PromptHandler{promptService: promptService}
}

// CreatePromptRequest 定义了创建提示词版本 API 的请求体结构。
type CreatePromptRequest struct {
	Name        string                  `json:"name" binding:"required"`
	Content     string                  `json:"content" binding:"required"`
	Type        string                  `json:"type" binding:"required"`
	ModelConfig model.PromptModelConfig `json:"modelConfig"`
}

// Create 在指定模板下创建提示词的下一个版本。
func (h *PromptHandler) Create(c *gin.Context) {
	tplID, err := pathID(c, "id")
	if err != nil {
		return
	}
	var req CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：name、content 和 type 不能为空",
		})
		return
	}

	p, err := h.promptService.CreateVersion(tplID, req.Name, req.Content, req.Type, req.ModelConfig)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, p)
}

// Get 按 ID 获取提示词。
func (h *PromptHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	p, err := h.promptService.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, p)
}

// List 获取模板下的提示词列表。
func (h *PromptHandler) List(c *gin.Context) {
	tplID, err := pathID(c, "id")
	if err != nil {
		return
	}
	list, err := h.promptService.List(tplID, c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// Versions 返回提示词的版本历史；?version=N 返回指定版本，
// ?active=true 返回启用的最大版本。
func (h *PromptHandler) Versions(c *gin.Context) {
	tplID, err := pathID(c, "id")
	if err != nil {
		return
	}
	name := c.Param("name")

	if raw := c.Query("version"); raw != "" {
		version, convErr := strconv.Atoi(raw)
		if convErr != nil || version <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "无效的版本号",
			})
			return
		}
		p, err := h.promptService.GetVersion(tplID, name, version)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, p)
		return
	}

	if c.Query("active") == "true" {
		p, err := h.promptService.GetActive(tplID, name)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, p)
		return
	}

	list, err := h.promptService.ListVersions(tplID, name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// SetActive 启停单个提示词版本。
func (h *PromptHandler) SetActive(c *gin.Context) {
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
	p, err := h.promptService.SetActive(id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, p)
}

// Delete 删除单个提示词版本。
func (h *PromptHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	if err := h.promptService.Delete(id, principalFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Prompt deleted",
	})
}
