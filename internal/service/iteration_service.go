package service

import (
	"context"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/config"
	"extractlab-go/internal/model"
	"extractlab-go/internal/repository"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/metrics"
)

// IterationResult 是一次迭代判定的产物。
// Improved 为 true 时携带新的提示词版本和针对同一文档的新运行；
// 准确率已达标时为无操作结果，Prompt 和 Run 为空。
type IterationResult struct {
	Improved bool                 `json:"improved"`
	Prompt   *model.Prompt        `json:"prompt,omitempty"`
	Run      *model.ExtractionRun `json:"run,omitempty"`
	// PreviousAccuracy 是触发迭代的评估准确率。
	PreviousAccuracy float64 `json:"previousAccuracy"`
	// Threshold 是判定时使用的准确率阈值。
	Threshold float64 `json:"threshold"`
}

// LineageEntry 是版本谱系中的一个节点：某个提示词版本及其运行与评估汇总。
type LineageEntry struct {
	PromptID     uint            `json:"promptId"`
	Version      int             `json:"version"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    model.LocalTime `json:"createdAt"`
	RunCount     int             `json:"runCount"`
	EvalCount    int             `json:"evalCount"`
	BestAccuracy *float64        `json:"bestAccuracy"`
}

// IterationService 接口定义了迭代控制器的操作。
// 当评估准确率低于阈值时，以修订后的正文创建新提示词版本，
// 并对同一输入文档发起新运行；版本谱系按版本号重建。
type IterationService interface {
	Iterate(ctx context.Context, evaluationID, revisedContent, principal string) (*IterationResult, error)
	Lineage(templateID uint, promptName string) ([]LineageEntry, error)
}

type iterationService struct {
	evalRepo   repository.EvaluationRepository
	runRepo    repository.RunRepository
	promptRepo repository.PromptRepository
	promptSvc  PromptService
	runSvc     RunService
}

// NewIterationService 创建一个新的 IterationService 实例。
func NewIterationService(evalRepo repository.EvaluationRepository, runRepo repository.RunRepository, promptRepo repository.PromptRepository, promptSvc PromptService, runSvc RunService) IterationService {
	return &iterationService{
		evalRepo:   evalRepo,
		runRepo:    runRepo,
		promptRepo: promptRepo,
		promptSvc:  promptSvc,
		runSvc:     runSvc,
	}
}

// Iterate 基于一次低于阈值的评估创建下一个提示词版本和新运行。
func (s *iterationService) Iterate(ctx context.Context, evaluationID, revisedContent, principal string) (*IterationResult, error) {
	// 1. 评估必须存在且带有准确率
	ev, err := s.evalRepo.FindByID(evaluationID)
	if err != nil {
		return nil, apperr.NewReferential("evaluation", evaluationID)
	}
	if ev.Accuracy == nil {
		return nil, apperr.NewPrecondition("iteration", "评估 %s 缺少准确率，无法判定是否迭代", evaluationID)
	}

	// 2. 阈值判定：达标的评估不触发迭代，返回无操作结果
	threshold := config.Conf.Iteration.AccuracyThreshold
	if *ev.Accuracy >= threshold {
		log.Infow("准确率已达标，跳过迭代", "evaluationId", evaluationID,
			"accuracy", *ev.Accuracy, "threshold", threshold)
		return &IterationResult{
			Improved:         false,
			PreviousAccuracy: *ev.Accuracy,
			Threshold:        threshold,
		}, nil
	}

	// 3. 定位触发评估的运行和提示词
	run, err := s.runRepo.FindByID(ev.ExtractionRunID)
	if err != nil {
		return nil, apperr.NewReferential("run", ev.ExtractionRunID)
	}
	prev, err := s.promptRepo.FindByID(run.PromptID)
	if err != nil {
		return nil, apperr.NewReferential("prompt", "")
	}

	// 4. 以修订正文插入同名新版本（版本号由仓储层原子递增）
	next, err := s.promptSvc.CreateVersion(prev.TemplateID, prev.Name, revisedContent, prev.Type, prev.ModelConfig)
	if err != nil {
		return nil, err
	}

	// 5. 对同一输入文档发起新运行，显式固定到新版本
	newRun, err := s.runSvc.Create(run.TemplateID, next.ID, "", run.InputDocumentURI, principal)
	if err != nil {
		return nil, err
	}

	metrics.IterationsTotal.Inc()
	log.Infow("迭代已触发", "evaluationId", evaluationID, "previousAccuracy", *ev.Accuracy,
		"threshold", threshold, "newPromptId", next.ID, "newVersion", next.Version, "newRunId", newRun.ID)

	return &IterationResult{
		Improved:         true,
		Prompt:           next,
		Run:              newRun,
		PreviousAccuracy: *ev.Accuracy,
		Threshold:        threshold,
	}, nil
}

// Lineage 按版本号升序重建提示词的版本谱系。
// 每个节点汇总该版本的运行次数、评估次数和历史最佳准确率。
func (s *iterationService) Lineage(templateID uint, promptName string) ([]LineageEntry, error) {
	versions, err := s.promptRepo.FindVersions(templateID, promptName)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, apperr.NewReferential("prompt", promptName)
	}

	lineage := make([]LineageEntry, 0, len(versions))
	for _, p := range versions {
		entry := LineageEntry{
			PromptID:  p.ID,
			Version:   p.Version,
			IsActive:  p.IsActive,
			CreatedAt: model.LocalTime(p.CreatedAt),
		}

		runs, err := s.runRepo.FindByPrompt(p.ID)
		if err != nil {
			return nil, err
		}
		entry.RunCount = len(runs)

		evals, err := s.evalRepo.FindByPrompt(p.ID)
		if err != nil {
			return nil, err
		}
		entry.EvalCount = len(evals)
		for _, ev := range evals {
			if ev.Accuracy == nil {
				continue
			}
			if entry.BestAccuracy == nil || *ev.Accuracy > *entry.BestAccuracy {
				entry.BestAccuracy = ptrFloat(*ev.Accuracy)
			}
		}

		lineage = append(lineage, entry)
	}
	return lineage, nil
}
