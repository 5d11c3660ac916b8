package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/service"
)

// TemplateHandler 负责处理模板相关的 API 请求。
type TemplateHandler struct {
	tplService service.TemplateService
}

// NewTemplateHandler 创建一个新的 TemplateHandler 实例。
func NewTemplateHandler(tplService service.TemplateService) *TemplateHandler {
	return &TemplateHandler{tplService: tplService}
}

// CreateTemplateRequest 定义了创建模板版本 API 的请求体结构。
type CreateTemplateRequest struct {
	Name              string          `json:"name" binding:"required"`
	SampleDocumentURI string          `json:"sampleDocumentUri" binding:"required"`
	GroundTruthURI    string          `json:"groundTruthUri" binding:"required"`
	SchemaDefinition  json.RawMessage `json:"schemaDefinition" binding:"required"`
}

// Create 在指定用例下创建模板的下一个版本。
func (h *TemplateHandler) Create(c *gin.Context) {
	ucID, err := pathID(c, "id")
	if err != nil {
		return
	}
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：name、sampleDocumentUri、groundTruthUri 和 schemaDefinition 不能为空",
		})
		return
	}

	tpl, err := h.tplService.CreateVersion(ucID, req.Name, req.SampleDocumentURI, req.GroundTruthURI, req.SchemaDefinition)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, tpl)
}

// Get 按 ID 获取模板。
func (h *TemplateHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	tpl, err := h.tplService.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, tpl)
}

// List 获取用例下的模板列表。
func (h *TemplateHandler) List(c *gin.Context) {
	ucID, err := pathID(c, "id")
	if err != nil {
		return
	}
	list, err := h.tplService.List(ucID, c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// Versions 返回模板的完整版本历史；?version=N 时返回指定版本，
// 缺省 ?latest=true 时返回最新版本。
func (h *TemplateHandler) Versions(c *gin.Context) {
	ucID, err := pathID(c, "id")
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
		tpl, err := h.tplService.GetVersion(ucID, name, version)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, tpl)
		return
	}

	if c.Query("latest") == "true" {
		tpl, err := h.tplService.GetLatest(ucID, name)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, tpl)
		return
	}

	list, err := h.tplService.ListVersions(ucID, name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// SetActive 启停单个模板版本。
func (h *TemplateHandler) SetActive(c *gin.Context) {
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
	tpl, err := h.tplService.SetActive(id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, tpl)
}

// Delete 级联删除单个模板版本。
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		return
	}
	if err := h.tplService.Delete(id, principalFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Template deleted",
	})
}
