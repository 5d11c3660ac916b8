package service

import (
	"errors"
	"testing"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
)

func newPromptTestEnv(t *testing.T) (PromptService, *fakeRunRepo, *model.Template) {
	t.Helper()
	promptRepo := newFakePromptRepo()
	tplRepo := newFakeTemplateRepo()
	runRepo := newFakeRunRepo()

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
	return NewPromptService(promptRepo, tplRepo, runRepo), runRepo, tpl
}

const promptContent = "Extract all invoice fields and return strict JSON."

func TestPromptVersionsIncrement(t *testing.T) {
	svc, _, tpl := newPromptTestEnv(t)

	v1, err := svc.CreateVersion(tpl.ID, "default", promptContent, model.PromptTypeExtraction, model.PromptModelConfig{})
	if err != nil {
		t.Fatalf("CreateVersion(v1): %v", err)
	}
	if v1.Version != 1 {
		t.Fatalf("首个版本应为 1，实际 %d", v1.Version)
	}

	v2, err := svc.CreateVersion(tpl.ID, "default", promptContent+" Include line items.", model.PromptTypeExtraction, model.PromptModelConfig{})
	if err != nil {
		t.Fatalf("CreateVersion(v2): %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("第二个版本应为 2，实际 %d", v2.Version)
	}

	versions, err := svc.ListVersions(tpl.ID, "default")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("期望 2 个版本，实际 %d", len(versions))
	}
}

func TestPromptGetActiveSkipsDisabledVersions(t *testing.T) {
	svc, _, tpl := newPromptTestEnv(t)

	v1, err := svc.CreateVersion(tpl.ID, "default", promptContent, model.PromptTypeExtraction, model.PromptModelConfig{})
	if err != nil {
		t.Fatalf("CreateVersion(v1): %v", err)
	}
	v2, err := svc.CreateVersion(tpl.ID, "default", promptContent+" v2", model.PromptTypeExtraction, model.PromptModelConfig{})
	if err != nil {
		t.Fatalf("CreateVersion(v2): %v", err)
	}

	if _, err := svc.SetActive(v2.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	active, err := svc.GetActive(tpl.ID, "default")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.ID != v1.ID {
		t.Fatalf("停用 v2 后启用版本应回落到 v1，实际 v%d", active.Version)
	}
}

func TestPromptCreateValidation(t *testing.T) {
	svc, _, tpl := newPromptTestEnv(t)

	tests := []struct {
		name       string
		promptName string
		content    string
		promptType string
		cfg        model.PromptModelConfig
	}{
		{"正文过短", "default", "too short", model.PromptTypeExtraction, model.PromptModelConfig{}},
		{"空名称", " ", promptContent, model.PromptTypeExtraction, model.PromptModelConfig{}},
		{"未知类型", "default", promptContent, "summarization", model.PromptModelConfig{}},
		{"temperature 越界", "default", promptContent, model.PromptTypeExtraction, model.PromptModelConfig{Temperature: 2.5}},
		{"maxTokens 为负", "default", promptContent, model.PromptTypeExtraction, model.PromptModelConfig{MaxTokens: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateVersion(tpl.ID, tt.promptName, tt.content, tt.promptType, tt.cfg)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("期望 ValidationError，实际 %v", err)
			}
		})
	}
}

func TestPromptDeleteBlockedByLiveRuns(t *testing.T) {
	svc, runRepo, tpl := newPromptTestEnv(t)

	p, err := svc.CreateVersion(tpl.ID, "default", promptContent, model.PromptTypeExtraction, model.PromptModelConfig{})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}

	run := &model.ExtractionRun{
		ID:               "run-1",
		TemplateID:       tpl.ID,
		PromptID:         p.ID,
		InputDocumentURI: "minio://b/in/doc.pdf",
		Status:           model.RunStatusRunning,
	}
	if err := runRepo.Create(run); err != nil {
		t.Fatalf("Create(run): %v", err)
	}

	err = svc.Delete(p.ID, "alice")
	var pc *apperr.PreconditionError
	if !errors.As(err, &pc) {
		t.Fatalf("未完结运行引用下删除应返回 PreconditionError，实际 %v", err)
	}

	// 运行完结后即可删除
	if _, err := runRepo.Transition(run.ID, []string{model.RunStatusRunning}, map[string]interface{}{
		"status": model.RunStatusCompleted,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := svc.Delete(p.ID, "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(p.ID); err == nil {
		t.Fatal("删除后不应再能获取提示词")
	}
}
