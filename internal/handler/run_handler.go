package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
	"extractlab-go/pkg/kafka"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/storage"
	"extractlab-go/pkg/tasks"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// RunHandler 负责处理抽取运行生命周期相关的 API 请求。
type RunHandler struct {
	runService service.RunService
}

// NewRunHandler 创建一个新的 RunHandler 实例。
func NewRunHandler(runService service.RunService) *RunHandler {
	return &RunHandler{runService: runService}
}

// CreateRunRequest 定义了创建运行 API 的请求体结构。
// PromptID 与 PromptName 二选一；指定名称时使用其启用的最大版本。
type CreateRunRequest struct {
	TemplateID       uint   `json:"templateId" binding:"required"`
	PromptID         uint   `json:"promptId"`
	PromptName       string `json:"promptName"`
	InputDocumentURI string `json:"inputDocumentUri" binding:"required"`
	// Async 为 true 时仅创建 pending 运行并投递到 Kafka，由管线异步执行。
	Async bool `json:"async"`
}

// Create 创建一条 pending 运行，可选投递到执行管线。
func (h *RunHandler) Create(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：templateId 和 inputDocumentUri 不能为空",
		})
		return
	}

	run, err := h.runService.Create(req.TemplateID, req.PromptID, req.PromptName, req.InputDocumentURI, principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Async {
		task := tasks.ExtractionTask{
			RunID:       run.ID,
			TemplateID:  run.TemplateID,
			PromptID:    run.PromptID,
			DocumentURI: run.InputDocumentURI,
			Principal:   principalFrom(c),
		}
		if err := kafka.ProduceExtractionTask(task); err != nil {
			log.Errorf("投递抽取任务失败: runId=%s, error: %v", run.ID, err)
			// 投递失败时运行保持 pending，可再次投递或人工取消
		}
	}
	respondOK(c, run)
}

// Start 将运行从 pending 迁移到 running，供外部执行器领取任务。
func (h *RunHandler) Start(c *gin.Context) {
	run, err := h.runService.Start(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, run)
}

// CompleteRunRequest 定义了完成运行 API 的请求体结构。
type CompleteRunRequest struct {
	OutputURI        string          `json:"outputUri" binding:"required"`
	OutputJSON       json.RawMessage `json:"outputJson"`
	Confidence       float64         `json:"confidence"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	ModelUsed        string          `json:"modelUsed"`
}

// Complete 将运行迁移到 completed 终态并记录执行结果。
func (h *RunHandler) Complete(c *gin.Context) {
	var req CompleteRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：outputUri 不能为空",
		})
		return
	}

	run, err := h.runService.Complete(c.Param("id"), service.CompleteInput{
		OutputURI:        req.OutputURI,
		OutputJSON:       req.OutputJSON,
		Confidence:       req.Confidence,
		ProcessingTimeMs: req.ProcessingTimeMs,
		ModelUsed:        req.ModelUsed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, run)
}

// FailRunRequest 定义了标记运行失败 API 的请求体结构。
type FailRunRequest struct {
	ErrorMessage string `json:"errorMessage" binding:"required"`
}

// Fail 将运行从 running 迁移到 failed 终态并记录失败原因。
func (h *RunHandler) Fail(c *gin.Context) {
	var req FailRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：errorMessage 不能为空",
		})
		return
	}

	run, err := h.runService.Fail(c.Param("id"), req.ErrorMessage)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, run)
}

// Get 按 ID 获取运行记录。
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, run)
}

// Status 返回运行状态，优先命中 Redis 缓存，供轮询客户端使用。
func (h *RunHandler) Status(c *gin.Context) {
	status, err := h.runService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"runId": c.Param("id"), "status": status})
}

// List 获取模板下的运行列表，可选按状态过滤。
func (h *RunHandler) List(c *gin.Context) {
	tplID, err := pathID(c, "id")
	if err != nil {
		return
	}
	list, err := h.runService.ListByTemplate(tplID, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// Cancel 将运行迁移到 cancelled 终态。
func (h *RunHandler) Cancel(c *gin.Context) {
	run, err := h.runService.Cancel(c.Param("id"), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, run)
}

// Retry 为失败的运行创建重试记录，并投递到执行管线。
func (h *RunHandler) Retry(c *gin.Context) {
	run, err := h.runService.Retry(c.Param("id"), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	task := tasks.ExtractionTask{
		RunID:       run.ID,
		TemplateID:  run.TemplateID,
		PromptID:    run.PromptID,
		DocumentURI: run.InputDocumentURI,
		Principal:   principalFrom(c),
	}
	if err := kafka.ProduceExtractionTask(task); err != nil {
		log.Errorf("投递重试任务失败: runId=%s, error: %v", run.ID, err)
	}
	respondOK(c, run)
}

// Output 为已完成运行的输出对象生成限时下载链接。
func (h *RunHandler) Output(c *gin.Context) {
	run, err := h.runService.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if run.Status != model.RunStatusCompleted || run.OutputURI == nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":    http.StatusConflict,
			"message": "运行尚未完成，没有可下载的输出",
		})
		return
	}

	bucket, object, err := storage.ParseURI(*run.OutputURI)
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := storage.GetPresignedURL(bucket, object, 15*time.Minute)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"url": url, "expiresInSeconds": 900})
}

// Watch 升级为 WebSocket 连接并推送运行的状态变更事件。
// 订阅时先推送一次当前状态，终态事件推送后关闭连接。
func (h *RunHandler) Watch(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.runService.Get(runID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	events, cancel := h.runService.Events().Subscribe(runID)
	defer cancel()

	// 当前状态作为首个事件
	first := service.RunEvent{
		RunID:     run.ID,
		Status:    run.Status,
		Message:   run.ErrorMessage,
		Timestamp: time.Now(),
	}
	if err := conn.WriteJSON(first); err != nil {
		return
	}
	if model.IsTerminalRunStatus(run.Status) {
		return
	}

	for evt := range events {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
		if model.IsTerminalRunStatus(evt.Status) {
			return
		}
	}
}
