package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
	"extractlab-go/internal/service"
	"extractlab-go/pkg/log"
)

// stubRunService 以内存状态机实现 service.RunService。
type stubRunService struct {
	runs map[string]*model.ExtractionRun
	hub  *service.RunEventHub
}

func newStubRunService() *stubRunService {
	return &stubRunService{runs: make(map[string]*model.ExtractionRun), hub: service.NewRunEventHub()}
}

func (s *stubRunService) seed(id, status string) *model.ExtractionRun {
	run := &model.ExtractionRun{
		ID:               id,
		TemplateID:       1,
		PromptID:         1,
		InputDocumentURI: "minio://extractlab/in/doc.pdf",
		Status:           status,
	}
	s.runs[id] = run
	return run
}

func (s *stubRunService) find(id string) (*model.ExtractionRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, apperr.NewReferential("run", id)
	}
	return run, nil
}

func (s *stubRunService) Create(templateID, promptID uint, promptName, inputDocumentURI, principal string) (*model.ExtractionRun, error) {
	run := &model.ExtractionRun{
		ID:               "run-created",
		TemplateID:       templateID,
		PromptID:         promptID,
		InputDocumentURI: inputDocumentURI,
		Status:           model.RunStatusPending,
		CreatedBy:        principal,
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *stubRunService) Start(id string) (*model.ExtractionRun, error) {
	run, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunStatusPending {
		return nil, apperr.NewPrecondition("run.start", "期望 pending，当前为 %s", run.Status)
	}
	run.Status = model.RunStatusRunning
	return run, nil
}

func (s *stubRunService) Complete(id string, in service.CompleteInput) (*model.ExtractionRun, error) {
	run, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, apperr.NewValidation("run.confidence", "置信度必须位于 [0, 1]")
	}
	if run.Status != model.RunStatusRunning {
		return nil, apperr.NewPrecondition("run.complete", "期望 running，当前为 %s", run.Status)
	}
	run.Status = model.RunStatusCompleted
	run.OutputURI = &in.OutputURI
	run.Confidence = &in.Confidence
	run.ProcessingTimeMs = in.ProcessingTimeMs
	run.ModelUsed = in.ModelUsed
	return run, nil
}

func (s *stubRunService) Fail(id, errorMessage string) (*model.ExtractionRun, error) {
	run, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunStatusRunning {
		return nil, apperr.NewPrecondition("run.fail", "期望 running，当前为 %s", run.Status)
	}
	run.Status = model.RunStatusFailed
	run.ErrorMessage = errorMessage
	return run, nil
}

func (s *stubRunService) Cancel(id, principal string) (*model.ExtractionRun, error) {
	run, err := s.find(id)
	if err != nil {
		return nil, err
	}
	run.Status = model.RunStatusCancelled
	return run, nil
}

func (s *stubRunService) Retry(id, principal string) (*model.ExtractionRun, error) {
	return nil, apperr.NewPrecondition("run.retry", "未实现")
}

func (s *stubRunService) Get(id string) (*model.ExtractionRun, error) {
	return s.find(id)
}

func (s *stubRunService) Status(ctx context.Context, id string) (string, error) {
	run, err := s.find(id)
	if err != nil {
		return "", err
	}
	return run.Status, nil
}

func (s *stubRunService) ListByTemplate(templateID uint, status string) ([]model.ExtractionRun, error) {
	return nil, nil
}

func (s *stubRunService) Events() *service.RunEventHub {
	return s.hub
}

func newRunRouter() (*gin.Engine, *stubRunService) {
	gin.SetMode(gin.TestMode)
	log.Init("error", "console", "")

	svc := newStubRunService()
	h := NewRunHandler(svc)

	r := gin.New()
	r.POST("/runs", h.Create)
	r.POST("/runs/:id/start", h.Start)
	r.POST("/runs/:id/complete", h.Complete)
	r.POST("/runs/:id/fail", h.Fail)
	r.GET("/runs/:id", h.Get)
	return r, svc
}

func decodeRun(t *testing.T, body []byte) model.ExtractionRun {
	t.Helper()
	var resp struct {
		Code int                 `json:"code"`
		Data model.ExtractionRun `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return resp.Data
}

func TestRunTransitionEndpoints(t *testing.T) {
	r, svc := newRunRouter()
	svc.seed("r1", model.RunStatusPending)

	w := doRequest(t, r, http.MethodPost, "/runs/r1/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start 期望 200，实际 %d: %s", w.Code, w.Body.String())
	}
	if got := decodeRun(t, w.Body.Bytes()); got.Status != model.RunStatusRunning {
		t.Fatalf("start 后期望 running，实际 %s", got.Status)
	}

	body := `{"outputUri":"minio://extractlab/outputs/r1.json","outputJson":{"total":42.5},"confidence":0.91,"processingTimeMs":1200,"modelUsed":"gpt-4o"}`
	w = doRequest(t, r, http.MethodPost, "/runs/r1/complete", body)
	if w.Code != http.StatusOK {
		t.Fatalf("complete 期望 200，实际 %d: %s", w.Code, w.Body.String())
	}
	got := decodeRun(t, w.Body.Bytes())
	if got.Status != model.RunStatusCompleted {
		t.Fatalf("complete 后期望 completed，实际 %s", got.Status)
	}
	if got.OutputURI == nil || *got.OutputURI != "minio://extractlab/outputs/r1.json" {
		t.Fatal("complete 后应回传输出地址")
	}

	// 终态吸收在 HTTP 层表现为 409
	w = doRequest(t, r, http.MethodPost, "/runs/r1/fail", `{"errorMessage":"boom"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("终态 fail 期望 409，实际 %d", w.Code)
	}
	w = doRequest(t, r, http.MethodPost, "/runs/r1/complete", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("重复 complete 期望 409，实际 %d", w.Code)
	}
}

func TestRunFailEndpoint(t *testing.T) {
	r, svc := newRunRouter()
	svc.seed("r2", model.RunStatusRunning)

	w := doRequest(t, r, http.MethodPost, "/runs/r2/fail", `{"errorMessage":"模型超时"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("fail 期望 200，实际 %d: %s", w.Code, w.Body.String())
	}
	got := decodeRun(t, w.Body.Bytes())
	if got.Status != model.RunStatusFailed || got.ErrorMessage != "模型超时" {
		t.Fatalf("fail 后状态不符: %s / %s", got.Status, got.ErrorMessage)
	}
}

func TestRunTransitionEndpointErrors(t *testing.T) {
	r, svc := newRunRouter()
	svc.seed("r3", model.RunStatusRunning)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"启动不存在的运行", http.MethodPost, "/runs/missing/start", "", http.StatusNotFound},
		{"完成缺少 outputUri", http.MethodPost, "/runs/r3/complete", `{"confidence":0.5}`, http.StatusBadRequest},
		{"完成时置信度越界", http.MethodPost, "/runs/r3/complete", `{"outputUri":"minio://b/o.json","confidence":1.5}`, http.StatusBadRequest},
		{"失败缺少 errorMessage", http.MethodPost, "/runs/r3/fail", `{}`, http.StatusBadRequest},
		{"失败于不存在的运行", http.MethodPost, "/runs/missing/fail", `{"errorMessage":"x"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, r, tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("期望 %d，实际 %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
