package service

import (
	"context"
	"errors"
	"testing"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
)

type iterationTestEnv struct {
	svc      IterationService
	runSvc   RunService
	evalRepo *fakeEvaluationRepo
	runRepo  *fakeRunRepo
	tpl      *model.Template
	prompt   *model.Prompt
}

func newIterationTestEnv(t *testing.T) *iterationTestEnv {
	t.Helper()
	runRepo := newFakeRunRepo()
	evalRepo := newFakeEvaluationRepo(runRepo)
	tplRepo := newFakeTemplateRepo()
	promptRepo := newFakePromptRepo()

	tpl := &model.Template{
		UseCaseID:         1,
		Name:              "invoice",
		SampleDocumentURI: "minio://b/samples/a.pdf",
		GroundTruthURI:    "minio://b/truth/a.json",
		IsActive:          true,
	}
	if err := tplRepo.CreateVersion(tpl); err != nil {
		t.Fatalf("CreateVersion(template): %v", err)
	}
	prompt := &model.Prompt{
		TemplateID: tpl.ID,
		Name:       "default",
		Content:    "Extract all invoice fields as JSON.",
		Type:       model.PromptTypeExtraction,
		IsActive:   true,
	}
	if err := promptRepo.CreateVersion(prompt); err != nil {
		t.Fatalf("CreateVersion(prompt): %v", err)
	}

	promptSvc := NewPromptService(promptRepo, tplRepo, runRepo)
	runSvc := NewRunService(runRepo, tplRepo, promptRepo, NewRunEventHub())
	svc := NewIterationService(evalRepo, runRepo, promptRepo, promptSvc, runSvc)
	return &iterationTestEnv{svc: svc, runSvc: runSvc, evalRepo: evalRepo, runRepo: runRepo, tpl: tpl, prompt: prompt}
}

// seedEvaluatedRun 造出一条 completed 运行和它的评估记录。
func (e *iterationTestEnv) seedEvaluatedRun(t *testing.T, runID string, accuracy float64) *model.EvaluationRun {
	t.Helper()
	output := "minio://b/outputs/" + runID + ".json"
	run := &model.ExtractionRun{
		ID:               runID,
		TemplateID:       e.tpl.ID,
		PromptID:         e.prompt.ID,
		InputDocumentURI: "minio://b/in/doc.pdf",
		Status:           model.RunStatusCompleted,
		OutputURI:        &output,
	}
	if err := e.runRepo.Create(run); err != nil {
		t.Fatalf("Create(run): %v", err)
	}
	ev := &model.EvaluationRun{
		ID:              "eval-" + runID,
		ExtractionRunID: runID,
		EvaluatorType:   model.EvaluatorTypeAutomated,
		Accuracy:        ptrFloat(accuracy),
	}
	if err := e.evalRepo.Create(ev); err != nil {
		t.Fatalf("Create(eval): %v", err)
	}
	return ev
}

func TestIterateCreatesNextVersionAndRun(t *testing.T) {
	env := newIterationTestEnv(t)
	ev := env.seedEvaluatedRun(t, "run-1", 0.6)

	revised := "Extract all invoice fields as JSON. Pay attention to dates."
	res, err := env.svc.Iterate(context.Background(), ev.ID, revised, "alice")
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	if !res.Improved {
		t.Fatal("低于阈值的评估应触发迭代")
	}
	if res.Prompt.Version != 2 {
		t.Fatalf("新提示词应为 v2，实际 v%d", res.Prompt.Version)
	}
	if res.Prompt.Name != env.prompt.Name || res.Prompt.TemplateID != env.tpl.ID {
		t.Fatal("新版本必须与原提示词同名同模板")
	}
	if res.Prompt.Content != revised {
		t.Fatal("新版本应使用修订后的正文")
	}
	if res.Prompt.Type != env.prompt.Type {
		t.Fatal("新版本应继承原提示词类型")
	}

	if res.Run.PromptID != res.Prompt.ID {
		t.Fatal("新运行必须固定到新提示词版本")
	}
	if res.Run.InputDocumentURI != "minio://b/in/doc.pdf" {
		t.Fatal("新运行必须针对同一输入文档")
	}
	if res.Run.Status != model.RunStatusPending {
		t.Fatalf("新运行应处于 pending，实际 %s", res.Run.Status)
	}
	if res.PreviousAccuracy != 0.6 {
		t.Fatalf("PreviousAccuracy 不符: %f", res.PreviousAccuracy)
	}
}

func TestIterateNoOpAboveThreshold(t *testing.T) {
	env := newIterationTestEnv(t)
	ev := env.seedEvaluatedRun(t, "run-1", 0.95)

	res, err := env.svc.Iterate(context.Background(), ev.ID, "Revised content long enough.", "alice")
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if res.Improved {
		t.Fatal("达标评估应返回无操作结果")
	}
	if res.Prompt != nil || res.Run != nil {
		t.Fatal("无操作结果不应携带新提示词或新运行")
	}
	if res.PreviousAccuracy != 0.95 {
		t.Fatalf("PreviousAccuracy 不符: %f", res.PreviousAccuracy)
	}

	// 无操作不得产生新版本或新运行
	entries, err := env.svc.Lineage(env.tpl.ID, env.prompt.Name)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("期望仍只有 1 个版本，实际 %d", len(entries))
	}
}

func TestIterateUnknownEvaluation(t *testing.T) {
	env := newIterationTestEnv(t)

	_, err := env.svc.Iterate(context.Background(), "missing", "Revised content long enough.", "alice")
	var re *apperr.ReferentialError
	if !errors.As(err, &re) {
		t.Fatalf("期望 ReferentialError，实际 %v", err)
	}
}

func TestIterateRejectsShortRevision(t *testing.T) {
	env := newIterationTestEnv(t)
	ev := env.seedEvaluatedRun(t, "run-1", 0.5)

	_, err := env.svc.Iterate(context.Background(), ev.ID, "short", "alice")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("过短修订应返回 ValidationError，实际 %v", err)
	}
}

func TestLineageAggregatesPerVersion(t *testing.T) {
	env := newIterationTestEnv(t)
	ev := env.seedEvaluatedRun(t, "run-1", 0.6)

	res, err := env.svc.Iterate(context.Background(), ev.ID, "Extract carefully, round two of prompting.", "alice")
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	// v2 的运行也完结并评估
	if _, err := env.runSvc.Start(res.Run.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := env.runSvc.Complete(res.Run.ID, CompleteInput{
		OutputURI:  "minio://b/outputs/" + res.Run.ID + ".json",
		Confidence: 0.9,
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := env.evalRepo.Create(&model.EvaluationRun{
		ID:              "eval-v2",
		ExtractionRunID: res.Run.ID,
		EvaluatorType:   model.EvaluatorTypeAutomated,
		Accuracy:        ptrFloat(0.92),
	}); err != nil {
		t.Fatalf("Create(eval): %v", err)
	}

	lineage, err := env.svc.Lineage(env.tpl.ID, env.prompt.Name)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if len(lineage) != 2 {
		t.Fatalf("谱系应有 2 个节点，实际 %d", len(lineage))
	}

	v1, v2 := lineage[0], lineage[1]
	if v1.Version != 1 || v2.Version != 2 {
		t.Fatal("谱系应按版本号升序")
	}
	if v1.RunCount != 1 || v1.EvalCount != 1 {
		t.Fatalf("v1 汇总不符: runs=%d evals=%d", v1.RunCount, v1.EvalCount)
	}
	if v1.BestAccuracy == nil || *v1.BestAccuracy != 0.6 {
		t.Fatal("v1 最佳准确率应为 0.6")
	}
	if v2.RunCount != 1 || v2.EvalCount != 1 {
		t.Fatalf("v2 汇总不符: runs=%d evals=%d", v2.RunCount, v2.EvalCount)
	}
	if v2.BestAccuracy == nil || *v2.BestAccuracy != 0.92 {
		t.Fatal("v2 最佳准确率应为 0.92")
	}
}

func TestLineageUnknownPrompt(t *testing.T) {
	env := newIterationTestEnv(t)

	_, err := env.svc.Lineage(env.tpl.ID, "nonexistent")
	var re *apperr.ReferentialError
	if !errors.As(err, &re) {
		t.Fatalf("期望 ReferentialError，实际 %v", err)
	}
}
