package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/compare"
	"extractlab-go/internal/config"
	"extractlab-go/internal/model"
	"extractlab-go/internal/repository"
	"extractlab-go/pkg/es"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/metrics"
	"extractlab-go/pkg/storage"
)

// ManualScores 携带人工或混合评估提交的聚合指标。
type ManualScores struct {
	Accuracy                 float64
	Precision                float64
	Recall                   float64
	F1Score                  float64
	TotalFieldsEvaluated     int
	CorrectlyExtractedFields int
	MismatchedFields         []model.FieldMismatch
}

// EvaluationService 接口定义了评估引擎的全部操作。
type EvaluationService interface {
	// Evaluate 对一次 completed 运行执行自动评估：拉取标准答案与输出，
	// 做字段级对比并计算聚合指标。标准答案缺失或损坏时不落任何部分结果。
	Evaluate(ctx context.Context, extractionRunID, principal string) (*model.EvaluationRun, error)
	// RecordManual 记录人工或混合评估的结果。同一运行可有多条评估记录。
	RecordManual(ctx context.Context, extractionRunID, evaluatorType, principal string, scores ManualScores) (*model.EvaluationRun, error)
	Get(id string) (*model.EvaluationRun, error)
	ListByRun(extractionRunID string) ([]model.EvaluationRun, error)
	LatestByType(extractionRunID, evaluatorType string) (*model.EvaluationRun, error)
	// SearchReviews 在复核索引中按字段路径或关键字检索评估。
	SearchReviews(ctx context.Context, fieldPath, query string, size int) ([]model.EvaluationReview, error)
}

type evaluationService struct {
	evalRepo  repository.EvaluationRepository
	runRepo   repository.RunRepository
	tplRepo   repository.TemplateRepository
	indexName string
}

// NewEvaluationService 创建一个新的 EvaluationService 实例。
func NewEvaluationService(evalRepo repository.EvaluationRepository, runRepo repository.RunRepository, tplRepo repository.TemplateRepository, indexName string) EvaluationService {
	return &evaluationService{
		evalRepo:  evalRepo,
		runRepo:   runRepo,
		tplRepo:   tplRepo,
		indexName: indexName,
	}
}

// Evaluate 执行自动评估的完整流程。
func (s *evaluationService) Evaluate(ctx context.Context, extractionRunID, principal string) (*model.EvaluationRun, error) {
	// 1. 前置条件：运行必须处于 completed 状态且有输出
	run, err := s.completedRun(extractionRunID)
	if err != nil {
		return nil, err
	}

	tpl, err := s.tplRepo.FindByID(run.TemplateID)
	if err != nil {
		return nil, err
	}

	// 2. 拉取标准答案。对象存储的瞬时故障做有限重试，
	// 对象确实缺失或内容损坏则归类为数据完整性错误。
	gtRaw, err := fetchWithRetry(ctx, tpl.GroundTruthURI)
	if err != nil {
		return nil, apperr.NewDataIntegrity(tpl.GroundTruthURI, "无法读取标准答案: %v", err)
	}
	groundTruth, err := compare.Flatten(gtRaw)
	if err != nil {
		return nil, apperr.NewDataIntegrity(tpl.GroundTruthURI, "标准答案不是合法的 JSON: %v", err)
	}
	if len(groundTruth) == 0 {
		return nil, apperr.NewDataIntegrity(tpl.GroundTruthURI, "标准答案不包含任何字段")
	}

	// 3. 拉取抽取输出
	outRaw, err := fetchWithRetry(ctx, *run.OutputURI)
	if err != nil {
		return nil, apperr.NewDataIntegrity(*run.OutputURI, "无法读取抽取输出: %v", err)
	}
	extracted, err := compare.Flatten(outRaw)
	if err != nil {
		return nil, apperr.NewDataIntegrity(*run.OutputURI, "抽取输出不是合法的 JSON: %v", err)
	}

	// 4. 字段级对比与指标计算
	evalCfg := config.Conf.Evaluation
	cmp := compare.Comparator{
		NumericTolerance: evalCfg.NumericTolerance,
		DateLayouts:      evalCfg.DateLayouts,
	}
	res := cmp.Diff(groundTruth, extracted)
	scores := compare.ComputeScores(res, *evalCfg.ExtrasInPrecision)

	ev := buildEvaluationRun(extractionRunID, model.EvaluatorTypeAutomated, principal, res, scores)
	if err := s.evalRepo.Create(ev); err != nil {
		return nil, err
	}

	metrics.EvaluationsTotal.WithLabelValues(model.EvaluatorTypeAutomated).Inc()
	metrics.EvaluationAccuracy.Observe(scores.Accuracy)
	log.Infow("自动评估已完成", "evaluationId", ev.ID, "runId", extractionRunID,
		"accuracy", scores.Accuracy, "total", scores.TotalFields, "correct", scores.CorrectFields)

	// 5. 写入复核索引。索引失败只降级告警，评估记录本身已落库。
	s.indexReview(ctx, ev, run, res)
	return ev, nil
}

// RecordManual 校验并记录人工或混合评估。
func (s *evaluationService) RecordManual(ctx context.Context, extractionRunID, evaluatorType, principal string, scores ManualScores) (*model.EvaluationRun, error) {
	if evaluatorType != model.EvaluatorTypeManual && evaluatorType != model.EvaluatorTypeHybrid {
		return nil, apperr.NewValidation("evaluation.evaluatorType", "人工记录仅接受 manual 或 hybrid，实际为 '%s'", evaluatorType)
	}
	run, err := s.completedRun(extractionRunID)
	if err != nil {
		return nil, err
	}
	for name, v := range map[string]float64{
		"accuracy": scores.Accuracy, "precision": scores.Precision,
		"recall": scores.Recall, "f1Score": scores.F1Score,
	} {
		if v < 0 || v > 1 {
			return nil, apperr.NewValidation("evaluation."+name, "指标必须位于 [0, 1]，实际为 %f", v)
		}
	}
	if scores.CorrectlyExtractedFields > scores.TotalFieldsEvaluated {
		return nil, apperr.NewValidation("evaluation.fieldCounts", "正确字段数 %d 不能超过总字段数 %d",
			scores.CorrectlyExtractedFields, scores.TotalFieldsEvaluated)
	}

	ev := &model.EvaluationRun{
		ID:                       uuid.NewString(),
		ExtractionRunID:          extractionRunID,
		EvaluatorType:            evaluatorType,
		Accuracy:                 ptrFloat(scores.Accuracy),
		Precision:                ptrFloat(scores.Precision),
		Recall:                   ptrFloat(scores.Recall),
		F1Score:                  ptrFloat(scores.F1Score),
		MismatchedFields:         scores.MismatchedFields,
		TotalFieldsEvaluated:     scores.TotalFieldsEvaluated,
		CorrectlyExtractedFields: scores.CorrectlyExtractedFields,
		CreatedBy:                principal,
	}
	if err := s.evalRepo.Create(ev); err != nil {
		return nil, err
	}

	metrics.EvaluationsTotal.WithLabelValues(evaluatorType).Inc()
	metrics.EvaluationAccuracy.Observe(scores.Accuracy)
	log.Infow("人工评估已记录", "evaluationId", ev.ID, "runId", run.ID, "evaluatorType", evaluatorType)
	return ev, nil
}

// Get 根据 ID 获取评估记录。
func (s *evaluationService) Get(id string) (*model.EvaluationRun, error) {
	ev, err := s.evalRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("evaluation", id)
		}
		return nil, err
	}
	return ev, nil
}

// ListByRun 检索某次运行的评估历史。
func (s *evaluationService) ListByRun(extractionRunID string) ([]model.EvaluationRun, error) {
	return s.evalRepo.FindByRun(extractionRunID)
}

// LatestByType 检索指定评估方式的最新记录。
func (s *evaluationService) LatestByType(extractionRunID, evaluatorType string) (*model.EvaluationRun, error) {
	ev, err := s.evalRepo.FindLatestByType(extractionRunID, evaluatorType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("evaluation", extractionRunID+"/"+evaluatorType)
		}
		return nil, err
	}
	return ev, nil
}

// SearchReviews 在 Elasticsearch 复核索引中检索。
func (s *evaluationService) SearchReviews(ctx context.Context, fieldPath, query string, size int) ([]model.EvaluationReview, error) {
	if size <= 0 || size > 100 {
		size = 20
	}
	return es.SearchReviews(ctx, s.indexName, fieldPath, query, size)
}

// completedRun 获取运行并确认其处于 completed 状态。
func (s *evaluationService) completedRun(id string) (*model.ExtractionRun, error) {
	run, err := s.runRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("run", id)
		}
		return nil, err
	}
	if run.Status != model.RunStatusCompleted {
		return nil, apperr.NewPrecondition("evaluation.create", "运行必须处于 completed 状态，当前为 %s", run.Status)
	}
	if run.OutputURI == nil || *run.OutputURI == "" {
		return nil, apperr.NewPrecondition("evaluation.create", "运行缺少输出地址")
	}
	return run, nil
}

// indexReview 将评估结果写入复核索引。
func (s *evaluationService) indexReview(ctx context.Context, ev *model.EvaluationRun, run *model.ExtractionRun, res compare.Result) {
	var summary strings.Builder
	for _, m := range res.Mismatches {
		fmt.Fprintf(&summary, "%s: %s != %s\n", m.Path, m.Expected, m.Actual)
	}
	doc := model.EvaluationReview{
		EvaluationID:    ev.ID,
		ExtractionRunID: run.ID,
		TemplateID:      run.TemplateID,
		PromptID:        run.PromptID,
		EvaluatorType:   ev.EvaluatorType,
		Accuracy:        *ev.Accuracy,
		MismatchPaths:   mismatchPaths(res.Mismatches),
		MissingPaths:    res.Missing,
		ExtraPaths:      res.Extras,
		MismatchSummary: summary.String(),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := es.IndexReview(ctx, s.indexName, doc); err != nil {
		log.Warnf("写入复核索引失败, evaluationId: %s, error: %v", ev.ID, err)
	}
}

// buildEvaluationRun 把对比结果组装为持久化记录。
func buildEvaluationRun(runID, evaluatorType, principal string, res compare.Result, scores compare.Scores) *model.EvaluationRun {
	fieldMetrics := make(map[string]string, scores.TotalFields+len(res.Extras))
	for _, p := range res.Matches {
		fieldMetrics[p] = model.FieldResultMatch
	}
	for _, m := range res.Mismatches {
		fieldMetrics[m.Path] = model.FieldResultMismatch
	}
	for _, p := range res.Missing {
		fieldMetrics[p] = model.FieldResultMissing
	}
	for _, p := range res.Extras {
		fieldMetrics[p] = model.FieldResultExtra
	}

	mismatches := make([]model.FieldMismatch, 0, len(res.Mismatches))
	for _, m := range res.Mismatches {
		mismatches = append(mismatches, model.FieldMismatch{Path: m.Path, Expected: m.Expected, Actual: m.Actual})
	}

	return &model.EvaluationRun{
		ID:                       uuid.NewString(),
		ExtractionRunID:          runID,
		EvaluatorType:            evaluatorType,
		Accuracy:                 ptrFloat(scores.Accuracy),
		Precision:                ptrFloat(scores.Precision),
		Recall:                   ptrFloat(scores.Recall),
		F1Score:                  ptrFloat(scores.F1),
		FieldLevelMetrics:        fieldMetrics,
		MismatchedFields:         mismatches,
		TotalFieldsEvaluated:     scores.TotalFields,
		CorrectlyExtractedFields: scores.CorrectFields,
		CreatedBy:                principal,
	}
}

// fetchWithRetry 从对象存储读取文档，对瞬时故障做指数退避重试。
func fetchWithRetry(ctx context.Context, uri string) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			return storage.FetchDocument(ctx, uri)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
}

func mismatchPaths(diffs []compare.FieldDiff) []string {
	paths := make([]string, 0, len(diffs))
	for _, d := range diffs {
		paths = append(paths, d.Path)
	}
	return paths
}

func ptrFloat(v float64) *float64 { return &v }
