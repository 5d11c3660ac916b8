package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/service"
)

// IterationHandler 负责处理迭代控制器相关的 API 请求。
type IterationHandler struct {
	iterService service.IterationService
}

// NewIterationHandler 创建一个新的 IterationHandler 实例。
func NewIterationHandler(iterService service.IterationService) *IterationHandler {
	return &IterationHandler{iterService: iterService}
}

// IterateRequest 定义了触发迭代 API 的请求体结构。
type IterateRequest struct {
	EvaluationID string `json:"evaluationId" binding:"required"`
	// RevisedContent 是修订后的提示词正文，将作为同名提示词的下一个版本。
	RevisedContent string `json:"revisedContent" binding:"required"`
}

// Iterate 基于一次低于阈值的评估创建新提示词版本和新运行。
func (h *IterationHandler) Iterate(c *gin.Context) {
	var req IterateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：evaluationId 和 revisedContent 不能为空",
		})
		return
	}

	result, err := h.iterService.Iterate(c.Request.Context(), req.EvaluationID, req.RevisedContent, principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// Lineage 重建指定提示词的版本谱系。
func (h *IterationHandler) Lineage(c *gin.Context) {
	tplID, err := pathID(c, "id")
	if err != nil {
		return
	}
	lineage, err := h.iterService.Lineage(tplID, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, lineage)
}
