package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
)

// EvaluationHandler 负责处理评估相关的 API 请求。
type EvaluationHandler struct {
	evalService service.EvaluationService
}

// NewEvaluationHandler 创建一个新的 EvaluationHandler 实例。
func NewEvaluationHandler(evalService service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evalService: evalService}
}

// Evaluate 对一条 completed 运行执行自动评估。
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	ev, err := h.evalService.Evaluate(c.Request.Context(), c.Param("id"), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ev)
}

// ManualEvaluationRequest 定义了记录人工评估 API 的请求体结构。
type ManualEvaluationRequest struct {
	EvaluatorType            string                `json:"evaluatorType" binding:"required"`
	Accuracy                 float64               `json:"accuracy"`
	Precision                float64               `json:"precision"`
	Recall                   float64               `json:"recall"`
	F1Score                  float64               `json:"f1Score"`
	TotalFieldsEvaluated     int                   `json:"totalFieldsEvaluated"`
	CorrectlyExtractedFields int                   `json:"correctlyExtractedFields"`
	MismatchedFields         []model.FieldMismatch `json:"mismatchedFields"`
}

// RecordManual 记录人工或混合评估结果。
func (h *EvaluationHandler) RecordManual(c *gin.Context) {
	var req ManualEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：evaluatorType 不能为空",
		})
		return
	}

	ev, err := h.evalService.RecordManual(c.Request.Context(), c.Param("id"), req.EvaluatorType, principalFrom(c), service.ManualScores{
		Accuracy:                 req.Accuracy,
		Precision:                req.Precision,
		Recall:                   req.Recall,
		F1Score:                  req.F1Score,
		TotalFieldsEvaluated:     req.TotalFieldsEvaluated,
		CorrectlyExtractedFields: req.CorrectlyExtractedFields,
		MismatchedFields:         req.MismatchedFields,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ev)
}

// Get 按 ID 获取评估记录。
func (h *EvaluationHandler) Get(c *gin.Context) {
	ev, err := h.evalService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ev)
}

// ListByRun 获取某次运行的评估历史；?evaluatorType=xxx 时返回该方式的最新一条。
func (h *EvaluationHandler) ListByRun(c *gin.Context) {
	runID := c.Param("id")

	if evaluatorType := c.Query("evaluatorType"); evaluatorType != "" {
		ev, err := h.evalService.LatestByType(runID, evaluatorType)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, ev)
		return
	}

	list, err := h.evalService.ListByRun(runID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// Search 在复核索引中检索评估。
// ?field=path 按不匹配字段路径精确检索，?q=keyword 做全文检索。
func (h *EvaluationHandler) Search(c *gin.Context) {
	fieldPath := c.Query("field")
	query := c.Query("q")
	if fieldPath == "" && query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "必须指定 field 或 q 查询参数",
		})
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	results, err := h.evalService.SearchReviews(c.Request.Context(), fieldPath, query, size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, results)
}
