// Package pipeline 实现了抽取任务的执行管线：
// 取文档、文本抽取、推理、落输出，并推进运行状态。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/avast/retry-go/v4"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
	"extractlab-go/pkg/llm"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/storage"
	"extractlab-go/pkg/tasks"
	"extractlab-go/pkg/tika"
)

// Processor 消费 Kafka 投递的抽取任务并驱动运行状态机走到终态。
type Processor struct {
	runSvc       service.RunService
	promptSvc    service.PromptService
	evalSvc      service.EvaluationService
	llmClient    llm.Client
	tikaClient   *tika.Client
	outputBucket string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(runSvc service.RunService, promptSvc service.PromptService, evalSvc service.EvaluationService, llmClient llm.Client, tikaClient *tika.Client, outputBucket string) *Processor {
	return &Processor{
		runSvc:       runSvc,
		promptSvc:    promptSvc,
		evalSvc:      evalSvc,
		llmClient:    llmClient,
		tikaClient:   tikaClient,
		outputBucket: outputBucket,
	}
}

// Process 执行单个抽取任务。运行不存在时先创建；
// 瞬时失败将运行置为 failed 后按重试上限创建重试运行并继续执行。
func (p *Processor) Process(ctx context.Context, task tasks.ExtractionTask) error {
	run, err := p.resolveRun(task)
	if err != nil {
		return err
	}

	for {
		execErr := p.execute(ctx, run)
		if execErr == nil {
			return nil
		}

		// 失败：先把当前运行置为 failed。
		// Start 本身出错时运行不在 running，迁移冲突按原错误返回
		if _, failErr := p.runSvc.Fail(run.ID, execErr.Error()); failErr != nil {
			var precond *apperr.PreconditionError
			if errors.As(failErr, &precond) {
				log.Warnf("[Pipeline] 运行 %s 未进入 running，跳过失败标记: %v", run.ID, failErr)
				return execErr
			}
			log.Errorf("[Pipeline] 标记运行失败时出错: runId=%s, error: %v", run.ID, failErr)
			return failErr
		}

		// 仅瞬时失败触发自动重试
		var transient *apperr.TransientExecutionError
		if !errors.As(execErr, &transient) {
			return execErr
		}

		retryRun, retryErr := p.runSvc.Retry(run.ID, "pipeline")
		if retryErr != nil {
			var permanent *apperr.PermanentExecutionError
			if errors.As(retryErr, &permanent) {
				// 已达重试上限，保持 failed 终态并交由人工处理
				log.Warnf("[Pipeline] 运行 %s 停止重试: %v", run.ID, retryErr)
				return retryErr
			}
			return retryErr
		}
		log.Infof("[Pipeline] 瞬时失败后自动重试: %s -> %s (第 %d 次)", run.ID, retryRun.ID, retryRun.RetryCount)
		run = retryRun
	}
}

// resolveRun 定位或创建任务对应的运行记录。
func (p *Processor) resolveRun(task tasks.ExtractionTask) (*model.ExtractionRun, error) {
	if task.RunID != "" {
		return p.runSvc.Get(task.RunID)
	}

	promptID := task.PromptID
	if promptID == 0 {
		// 未指定提示词时选用模板下最大活跃版本的抽取类提示词
		prompt, err := p.defaultExtractionPrompt(task.TemplateID)
		if err != nil {
			return nil, err
		}
		promptID = prompt.ID
	}

	principal := task.Principal
	if principal == "" {
		principal = "ingestion"
	}
	return p.runSvc.Create(task.TemplateID, promptID, "", task.DocumentURI, principal)
}

// defaultExtractionPrompt 返回模板下版本号最大的活跃抽取提示词。
func (p *Processor) defaultExtractionPrompt(templateID uint) (*model.Prompt, error) {
	prompts, err := p.promptSvc.List(templateID, true)
	if err != nil {
		return nil, err
	}
	var best *model.Prompt
	for i := range prompts {
		if prompts[i].Type != model.PromptTypeExtraction {
			continue
		}
		if best == nil || prompts[i].Version > best.Version {
			best = &prompts[i]
		}
	}
	if best == nil {
		return nil, apperr.NewPrecondition("pipeline", "模板 %d 下没有可用的抽取提示词", templateID)
	}
	return best, nil
}

// execute 将一条 pending 运行推进到 completed，失败时返回分类后的错误。
func (p *Processor) execute(ctx context.Context, run *model.ExtractionRun) error {
	if _, err := p.runSvc.Start(run.ID); err != nil {
		return err
	}

	prompt, err := p.promptSvc.Get(run.PromptID)
	if err != nil {
		return apperr.NewPermanent(err)
	}

	// 1. 下载输入文档，对象存储瞬时故障做退避重试
	raw, err := retry.DoWithData(
		func() ([]byte, error) {
			return storage.FetchDocument(ctx, run.InputDocumentURI)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return apperr.NewTransient(fmt.Errorf("下载输入文档失败: %w", err))
	}

	// 2. 通过 Tika 抽取文档文本
	_, object, err := storage.ParseURI(run.InputDocumentURI)
	if err != nil {
		return apperr.NewPermanent(err)
	}
	text, err := p.tikaClient.ExtractText(bytes.NewReader(raw), object)
	if err != nil {
		return apperr.NewTransient(fmt.Errorf("Tika 文本抽取失败: %w", err))
	}

	// 3. 推理
	result, err := p.llmClient.Extract(ctx, text, prompt.Content, prompt.ModelConfig)
	if err != nil {
		var transient *llm.TransientError
		if errors.As(err, &transient) {
			return apperr.NewTransient(err)
		}
		return apperr.NewPermanent(err)
	}

	// 4. 输出对象以运行 ID 命名，写入后不可覆盖
	outputObject := path.Join("outputs", run.ID+".json")
	outputURI, err := storage.PutImmutable(ctx, p.outputBucket, outputObject, result.OutputJSON, "application/json")
	if err != nil {
		return apperr.NewTransient(fmt.Errorf("写入抽取输出失败: %w", err))
	}

	// 5. 完成运行。schema 校验失败被归类为永久失败
	if _, err := p.runSvc.Complete(run.ID, service.CompleteInput{
		OutputURI:        outputURI,
		OutputJSON:       result.OutputJSON,
		Confidence:       result.Confidence,
		ProcessingTimeMs: result.ProcessingTimeMs,
		ModelUsed:        result.ModelUsed,
	}); err != nil {
		return err
	}

	// 6. 自动评估。评估失败不回滚已完成的运行
	if p.evalSvc != nil {
		if _, err := p.evalSvc.Evaluate(ctx, run.ID, "pipeline"); err != nil {
			log.Warnf("[Pipeline] 自动评估失败: runId=%s, error: %v", run.ID, err)
		}
	}
	return nil
}
