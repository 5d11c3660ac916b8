package service

import (
	"context"
	"errors"
	"testing"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/compare"
	"extractlab-go/internal/model"
)

func newEvalTestEnv(t *testing.T) (EvaluationService, *fakeRunRepo, *fakeEvaluationRepo) {
	t.Helper()
	runRepo := newFakeRunRepo()
	evalRepo := newFakeEvaluationRepo(runRepo)
	tplRepo := newFakeTemplateRepo()
	return NewEvaluationService(evalRepo, runRepo, tplRepo, "evaluation-reviews"), runRepo, evalRepo
}

func seedRun(t *testing.T, runRepo *fakeRunRepo, id, status string, outputURI string) *model.ExtractionRun {
	t.Helper()
	run := &model.ExtractionRun{
		ID:               id,
		TemplateID:       1,
		PromptID:         1,
		InputDocumentURI: "minio://b/in/doc.pdf",
		Status:           status,
	}
	if outputURI != "" {
		run.OutputURI = &outputURI
	}
	if err := runRepo.Create(run); err != nil {
		t.Fatalf("Create(run): %v", err)
	}
	return run
}

func TestEvaluateRequiresCompletedRun(t *testing.T) {
	svc, runRepo, _ := newEvalTestEnv(t)
	ctx := context.Background()

	// 运行不存在
	_, err := svc.Evaluate(ctx, "missing", "alice")
	var re *apperr.ReferentialError
	if !errors.As(err, &re) {
		t.Fatalf("期望 ReferentialError，实际 %v", err)
	}

	// 未完结的运行
	seedRun(t, runRepo, "run-running", model.RunStatusRunning, "")
	_, err = svc.Evaluate(ctx, "run-running", "alice")
	var pc *apperr.PreconditionError
	if !errors.As(err, &pc) {
		t.Fatalf("running 状态评估应返回 PreconditionError，实际 %v", err)
	}

	// completed 但缺少输出地址
	seedRun(t, runRepo, "run-no-output", model.RunStatusCompleted, "")
	_, err = svc.Evaluate(ctx, "run-no-output", "alice")
	if !errors.As(err, &pc) {
		t.Fatalf("缺少输出地址评估应返回 PreconditionError，实际 %v", err)
	}
}

func TestRecordManualValidation(t *testing.T) {
	svc, runRepo, _ := newEvalTestEnv(t)
	ctx := context.Background()
	seedRun(t, runRepo, "run-done", model.RunStatusCompleted, "minio://b/out/run-done.json")

	valid := ManualScores{
		Accuracy: 0.8, Precision: 0.8, Recall: 0.8, F1Score: 0.8,
		TotalFieldsEvaluated: 10, CorrectlyExtractedFields: 8,
	}

	tests := []struct {
		name          string
		evaluatorType string
		mutate        func(*ManualScores)
	}{
		{"automated 不允许人工记录", model.EvaluatorTypeAutomated, func(s *ManualScores) {}},
		{"未知评估者类型", "robot", func(s *ManualScores) {}},
		{"准确率越界", model.EvaluatorTypeManual, func(s *ManualScores) { s.Accuracy = 1.2 }},
		{"召回率为负", model.EvaluatorTypeManual, func(s *ManualScores) { s.Recall = -0.1 }},
		{"正确数超过总数", model.EvaluatorTypeManual, func(s *ManualScores) { s.CorrectlyExtractedFields = 11 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := valid
			tt.mutate(&scores)
			_, err := svc.RecordManual(ctx, "run-done", tt.evaluatorType, "alice", scores)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("期望 ValidationError，实际 %v", err)
			}
		})
	}
}

func TestRecordManualPersistsHistory(t *testing.T) {
	svc, runRepo, _ := newEvalTestEnv(t)
	ctx := context.Background()
	seedRun(t, runRepo, "run-done", model.RunStatusCompleted, "minio://b/out/run-done.json")

	scores := ManualScores{
		Accuracy: 0.7, Precision: 0.75, Recall: 0.7, F1Score: 0.72,
		TotalFieldsEvaluated: 10, CorrectlyExtractedFields: 7,
		MismatchedFields: []model.FieldMismatch{{Path: "total", Expected: "42", Actual: "24"}},
	}

	first, err := svc.RecordManual(ctx, "run-done", model.EvaluatorTypeManual, "alice", scores)
	if err != nil {
		t.Fatalf("RecordManual(first): %v", err)
	}
	if first.EvaluatorType != model.EvaluatorTypeManual {
		t.Fatalf("评估者类型不符: %s", first.EvaluatorType)
	}
	if first.Accuracy == nil || *first.Accuracy != 0.7 {
		t.Fatal("准确率未正确落库")
	}

	scores.Accuracy = 0.9
	second, err := svc.RecordManual(ctx, "run-done", model.EvaluatorTypeHybrid, "bob", scores)
	if err != nil {
		t.Fatalf("RecordManual(second): %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("同一运行的多条评估必须是独立记录")
	}

	// 历史完整保留
	all, err := svc.ListByRun("run-done")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("期望 2 条评估记录，实际 %d", len(all))
	}

	latest, err := svc.LatestByType("run-done", model.EvaluatorTypeHybrid)
	if err != nil {
		t.Fatalf("LatestByType: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatal("LatestByType 应返回 hybrid 的最新记录")
	}
}

func TestBuildEvaluationRunClassifiesFields(t *testing.T) {
	res := compare.Result{
		Matches: []string{"vendor", "total"},
		Mismatches: []compare.FieldDiff{
			{Path: "date", Expected: "2024-01-01", Actual: "2024-02-01"},
		},
		Missing: []string{"currency"},
		Extras:  []string{"notes"},
	}
	scores := compare.ComputeScores(res, true)

	ev := buildEvaluationRun("run-1", model.EvaluatorTypeAutomated, "pipeline", res, scores)

	if ev.ExtractionRunID != "run-1" {
		t.Fatalf("运行引用不符: %s", ev.ExtractionRunID)
	}
	if ev.TotalFieldsEvaluated != 4 {
		t.Fatalf("总字段数应为 4（不含多余字段），实际 %d", ev.TotalFieldsEvaluated)
	}
	if ev.CorrectlyExtractedFields != 2 {
		t.Fatalf("正确字段数应为 2，实际 %d", ev.CorrectlyExtractedFields)
	}

	want := map[string]string{
		"vendor":   model.FieldResultMatch,
		"total":    model.FieldResultMatch,
		"date":     model.FieldResultMismatch,
		"currency": model.FieldResultMissing,
		"notes":    model.FieldResultExtra,
	}
	for path, result := range want {
		if ev.FieldLevelMetrics[path] != result {
			t.Fatalf("字段 %s 应归类为 %s，实际 %s", path, result, ev.FieldLevelMetrics[path])
		}
	}
	if len(ev.MismatchedFields) != 1 || ev.MismatchedFields[0].Path != "date" {
		t.Fatalf("错配明细不符: %+v", ev.MismatchedFields)
	}
}
