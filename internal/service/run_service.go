package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/config"
	"extractlab-go/internal/model"
	"extractlab-go/internal/repository"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/metrics"
	"extractlab-go/pkg/storage"
)

// CompleteInput 携带完成一次运行所需的全部执行结果。
type CompleteInput struct {
	OutputURI        string
	OutputJSON       []byte
	Confidence       float64
	ProcessingTimeMs int64
	ModelUsed        string
}

// RunService 接口定义了抽取运行生命周期的全部操作。
// 状态机：pending 先进入 running，再进入 completed、failed 或 cancelled，终态吸收。
// 所有迁移都通过条件更新执行，并发竞争时恰好一方成功。
type RunService interface {
	// Create 创建一条 pending 运行。promptID 为 0 时解析模板下
	// 指定名称的启用最大版本；提示词引用创建后固定不变。
	Create(templateID, promptID uint, promptName, inputDocumentURI, principal string) (*model.ExtractionRun, error)
	Start(id string) (*model.ExtractionRun, error)
	Complete(id string, in CompleteInput) (*model.ExtractionRun, error)
	Fail(id, errorMessage string) (*model.ExtractionRun, error)
	Cancel(id, principal string) (*model.ExtractionRun, error)
	// Retry 为失败的运行创建一条重试计数加一的新记录，原记录保持不变。
	Retry(id, principal string) (*model.ExtractionRun, error)
	Get(id string) (*model.ExtractionRun, error)
	Status(ctx context.Context, id string) (string, error)
	ListByTemplate(templateID uint, status string) ([]model.ExtractionRun, error)
	Events() *RunEventHub
}

type runService struct {
	runRepo    repository.RunRepository
	tplRepo    repository.TemplateRepository
	promptRepo repository.PromptRepository
	hub        *RunEventHub
}

// NewRunService 创建一个新的 RunService 实例。
func NewRunService(runRepo repository.RunRepository, tplRepo repository.TemplateRepository, promptRepo repository.PromptRepository, hub *RunEventHub) RunService {
	return &runService{runRepo: runRepo, tplRepo: tplRepo, promptRepo: promptRepo, hub: hub}
}

// Create 校验引用并创建 pending 运行。
func (s *runService) Create(templateID, promptID uint, promptName, inputDocumentURI, principal string) (*model.ExtractionRun, error) {
	// 1. 模板必须存在且启用
	tpl, err := s.tplRepo.FindByID(templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("template", strconv.FormatUint(uint64(templateID), 10))
		}
		return nil, err
	}
	if !tpl.IsActive {
		return nil, apperr.NewPrecondition("run.create", "模板 '%s' v%d 已停用", tpl.Name, tpl.Version)
	}

	// 2. 解析提示词：显式 ID 优先，否则取启用的最大版本
	var prompt *model.Prompt
	if promptID != 0 {
		prompt, err = s.promptRepo.FindByID(promptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NewReferential("prompt", strconv.FormatUint(uint64(promptID), 10))
			}
			return nil, err
		}
		if prompt.TemplateID != templateID {
			// 提示词与模板互不一致属于引用失效，而非取值问题
			return nil, apperr.NewReferential("prompt", strconv.FormatUint(uint64(promptID), 10))
		}
	} else {
		if promptName == "" {
			return nil, apperr.NewValidation("run.prompt", "必须指定提示词 ID 或名称")
		}
		prompt, err = s.promptRepo.FindActive(templateID, promptName)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NewReferential("prompt", promptName)
			}
			return nil, err
		}
	}

	// 3. 输入文档地址校验
	if _, _, err := storage.ParseURI(inputDocumentURI); err != nil {
		return nil, apperr.NewValidation("run.inputDocumentUri", "无效的输入文档地址: %v", err)
	}

	run := &model.ExtractionRun{
		ID:               uuid.NewString(),
		TemplateID:       templateID,
		PromptID:         prompt.ID,
		InputDocumentURI: inputDocumentURI,
		Status:           model.RunStatusPending,
		StartedAt:        time.Now(),
		CreatedBy:        principal,
	}
	if err := s.runRepo.Create(run); err != nil {
		return nil, err
	}

	metrics.RunTransitions.WithLabelValues(model.RunStatusPending).Inc()
	log.Infow("抽取运行已创建", "runId", run.ID, "templateId", templateID, "promptId", prompt.ID, "principal", principal)
	s.publish(run.ID, model.RunStatusPending, "")
	return run, nil
}

// Start 将运行从 pending 迁移到 running。
func (s *runService) Start(id string) (*model.ExtractionRun, error) {
	ok, err := s.runRepo.Transition(id, []string{model.RunStatusPending}, map[string]interface{}{
		"status":     model.RunStatusRunning,
		"started_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionConflict(id, "run.start", model.RunStatusPending)
	}

	metrics.RunTransitions.WithLabelValues(model.RunStatusRunning).Inc()
	s.publish(id, model.RunStatusRunning, "")
	return s.Get(id)
}

// Complete 将运行从 running 迁移到 completed，并校验执行结果。
func (s *runService) Complete(id string, in CompleteInput) (*model.ExtractionRun, error) {
	// 1. 结果字段校验
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, apperr.NewValidation("run.confidence", "置信度必须位于 [0, 1]，实际为 %f", in.Confidence)
	}
	if in.ProcessingTimeMs < 0 {
		return nil, apperr.NewValidation("run.processingTimeMs", "处理耗时不能为负数")
	}
	if _, object, err := storage.ParseURI(in.OutputURI); err != nil {
		return nil, apperr.NewValidation("run.outputUri", "无效的输出地址: %v", err)
	} else if strings.ToLower(path.Ext(object)) != ".json" {
		return nil, apperr.NewValidation("run.outputUri", "输出必须是 .json 文档")
	}

	// 2. 输出必须符合模板的 schema 定义
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	tpl, err := s.tplRepo.FindByID(run.TemplateID)
	if err != nil {
		return nil, err
	}
	if len(in.OutputJSON) > 0 && len(tpl.SchemaDefinition) > 0 {
		if err := validateAgainstSchema(tpl.SchemaDefinition, in.OutputJSON); err != nil {
			return nil, apperr.NewPermanent(fmt.Errorf("输出不符合模板 schema: %w", err))
		}
	}

	// 3. 条件迁移
	now := time.Now()
	ok, err := s.runRepo.Transition(id, []string{model.RunStatusRunning}, map[string]interface{}{
		"status":             model.RunStatusCompleted,
		"output_uri":         in.OutputURI,
		"confidence":         in.Confidence,
		"processing_time_ms": in.ProcessingTimeMs,
		"model_used":         in.ModelUsed,
		"completed_at":       now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionConflict(id, "run.complete", model.RunStatusRunning)
	}

	metrics.RunTransitions.WithLabelValues(model.RunStatusCompleted).Inc()
	metrics.InferenceDuration.Observe(float64(in.ProcessingTimeMs) / 1000)
	log.Infow("抽取运行已完成", "runId", id, "outputUri", in.OutputURI, "confidence", in.Confidence)
	s.publish(id, model.RunStatusCompleted, "")
	return s.Get(id)
}

// Fail 将运行从 running 迁移到 failed。
// pending 运行的唯一退出路径是 cancel。
func (s *runService) Fail(id, errorMessage string) (*model.ExtractionRun, error) {
	now := time.Now()
	ok, err := s.runRepo.Transition(id, []string{model.RunStatusRunning}, map[string]interface{}{
		"status":        model.RunStatusFailed,
		"error_message": errorMessage,
		"completed_at":  now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionConflict(id, "run.fail", model.RunStatusRunning)
	}

	metrics.RunTransitions.WithLabelValues(model.RunStatusFailed).Inc()
	log.Warnw("抽取运行已失败", "runId", id, "error", errorMessage)
	s.publish(id, model.RunStatusFailed, errorMessage)
	return s.Get(id)
}

// Cancel 将运行从 pending 或 running 迁移到 cancelled。
func (s *runService) Cancel(id, principal string) (*model.ExtractionRun, error) {
	now := time.Now()
	ok, err := s.runRepo.Transition(id, []string{model.RunStatusPending, model.RunStatusRunning}, map[string]interface{}{
		"status":       model.RunStatusCancelled,
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.transitionConflict(id, "run.cancel", "pending/running")
	}

	metrics.RunTransitions.WithLabelValues(model.RunStatusCancelled).Inc()
	log.Infow("抽取运行已取消", "runId", id, "principal", principal)
	s.publish(id, model.RunStatusCancelled, "")
	return s.Get(id)
}

// Retry 基于失败的运行创建新记录，重试计数加一。
func (s *runService) Retry(id, principal string) (*model.ExtractionRun, error) {
	orig, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if orig.Status != model.RunStatusFailed {
		return nil, apperr.NewPrecondition("run.retry", "只有 failed 状态的运行可以重试，当前为 %s", orig.Status)
	}
	if orig.RetryCount >= config.Conf.Run.MaxRetries {
		// 上限命中后不再自动重试，升级为需要人工介入的永久失败
		return nil, apperr.NewPermanent(fmt.Errorf("运行 %s 已达到重试上限 %d", id, config.Conf.Run.MaxRetries))
	}

	retry := &model.ExtractionRun{
		ID:               uuid.NewString(),
		TemplateID:       orig.TemplateID,
		PromptID:         orig.PromptID,
		InputDocumentURI: orig.InputDocumentURI,
		Status:           model.RunStatusPending,
		StartedAt:        time.Now(),
		RetryCount:       orig.RetryCount + 1,
		CreatedBy:        principal,
	}
	if err := s.runRepo.Create(retry); err != nil {
		return nil, err
	}

	metrics.RunRetries.Inc()
	metrics.RunTransitions.WithLabelValues(model.RunStatusPending).Inc()
	log.Infow("已创建重试运行", "originalRunId", id, "retryRunId", retry.ID, "retryCount", retry.RetryCount)
	s.publish(retry.ID, model.RunStatusPending, "")
	return retry, nil
}

// Get 根据 ID 获取运行记录。
func (s *runService) Get(id string) (*model.ExtractionRun, error) {
	run, err := s.runRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("run", id)
		}
		return nil, err
	}
	return run, nil
}

// Status 返回运行状态，优先命中 Redis 缓存。
func (s *runService) Status(ctx context.Context, id string) (string, error) {
	status, err := s.runRepo.CachedStatus(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NewReferential("run", id)
		}
		return "", err
	}
	return status, nil
}

// ListByTemplate 检索模板下的运行列表。
func (s *runService) ListByTemplate(templateID uint, status string) ([]model.ExtractionRun, error) {
	if status != "" && !validRunStatus(status) {
		return nil, apperr.NewValidation("run.status", "未知的运行状态 '%s'", status)
	}
	return s.runRepo.FindByTemplate(templateID, status)
}

// Events 暴露事件中心供 WebSocket 处理器订阅。
func (s *runService) Events() *RunEventHub {
	return s.hub
}

// transitionConflict 将未命中的条件更新转换为带当前状态的前置条件错误。
func (s *runService) transitionConflict(id, op, expected string) error {
	run, err := s.Get(id)
	if err != nil {
		return err
	}
	return apperr.NewPrecondition(op, "要求状态为 %s，当前为 %s", expected, run.Status)
}

func (s *runService) publish(id, status, message string) {
	if s.hub != nil {
		s.hub.Publish(RunEvent{RunID: id, Status: status, Message: message, Timestamp: time.Now()})
	}
}

func validRunStatus(status string) bool {
	switch status {
	case model.RunStatusPending, model.RunStatusRunning,
		model.RunStatusCompleted, model.RunStatusFailed, model.RunStatusCancelled:
		return true
	}
	return false
}

// validateAgainstSchema 将抽取输出与模板的 JSON Schema 进行校验。
func validateAgainstSchema(schema, doc []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return err
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}
	return compiled.Validate(v)
}
