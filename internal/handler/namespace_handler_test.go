package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
	"extractlab-go/pkg/log"
)

// stubNamespaceService 以固定数据实现 service.NamespaceService。
type stubNamespaceService struct {
	items map[uint]*model.Namespace
}

func (s *stubNamespaceService) Create(name string, ownerID uint, settings model.NamespaceSettings) (*model.Namespace, error) {
	if len(name) < 3 {
		return nil, apperr.NewValidation("namespace.name.length", "名称长度必须在 3 到 100 之间")
	}
	for _, ns := range s.items {
		if ns.Name == name {
			return nil, apperr.NewValidation("namespace.name.unique", "名称 '%s' 已被占用", name)
		}
	}
	ns := &model.Namespace{ID: uint(len(s.items) + 1), Name: name, OwnerID: ownerID, IsActive: true, Settings: settings}
	s.items[ns.ID] = ns
	return ns, nil
}

func (s *stubNamespaceService) Get(id uint) (*model.Namespace, error) {
	ns, ok := s.items[id]
	if !ok {
		return nil, apperr.NewReferential("namespace", "42")
	}
	return ns, nil
}

func (s *stubNamespaceService) GetByName(name string) (*model.Namespace, error) {
	for _, ns := range s.items {
		if ns.Name == name {
			return ns, nil
		}
	}
	return nil, apperr.NewReferential("namespace", name)
}

func (s *stubNamespaceService) List(activeOnly bool) ([]model.Namespace, error) {
	var out []model.Namespace
	for _, ns := range s.items {
		if activeOnly && !ns.IsActive {
			continue
		}
		out = append(out, *ns)
	}
	return out, nil
}

func (s *stubNamespaceService) UpdateSettings(id uint, settings model.NamespaceSettings) (*model.Namespace, error) {
	ns, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	ns.Settings = settings
	return ns, nil
}

func (s *stubNamespaceService) SetActive(id uint, active bool) (*model.Namespace, error) {
	ns, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	ns.IsActive = active
	return ns, nil
}

func (s *stubNamespaceService) Delete(id uint, principal string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	delete(s.items, id)
	return nil
}

func newNamespaceRouter() (*gin.Engine, *stubNamespaceService) {
	gin.SetMode(gin.TestMode)
	log.Init("error", "console", "")

	svc := &stubNamespaceService{items: make(map[uint]*model.Namespace)}
	h := NewNamespaceHandler(svc)

	r := gin.New()
	r.POST("/namespaces", h.Create)
	r.GET("/namespaces", h.List)
	r.GET("/namespaces/:id", h.Get)
	r.PATCH("/namespaces/:id/active", h.SetActive)
	r.DELETE("/namespaces/:id", h.Delete)
	return r, svc
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNamespaceCreateEndpoint(t *testing.T) {
	r, _ := newNamespaceRouter()

	w := doRequest(t, r, http.MethodPost, "/namespaces", `{"name":"billing","settings":{"retentionDays":30}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    model.Namespace `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Data.Name != "billing" || !resp.Data.IsActive {
		t.Fatalf("响应数据不符: %+v", resp.Data)
	}
	if resp.Data.Settings.RetentionDays != 30 {
		t.Fatalf("settings 未透传: %+v", resp.Data.Settings)
	}
}

func TestNamespaceEndpointErrorMapping(t *testing.T) {
	r, svc := newNamespaceRouter()
	if _, err := svc.Create("billing", 1, model.NamespaceSettings{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"缺少 name 字段", http.MethodPost, "/namespaces", `{}`, http.StatusBadRequest},
		{"名称校验失败", http.MethodPost, "/namespaces", `{"name":"ab"}`, http.StatusBadRequest},
		{"重名", http.MethodPost, "/namespaces", `{"name":"billing"}`, http.StatusBadRequest},
		{"不存在的 ID", http.MethodGet, "/namespaces/42", "", http.StatusNotFound},
		{"非法路径参数", http.MethodGet, "/namespaces/abc", "", http.StatusBadRequest},
		{"active 字段缺失", http.MethodPatch, "/namespaces/1/active", `{}`, http.StatusBadRequest},
		{"删除不存在的 ID", http.MethodDelete, "/namespaces/42", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("期望 %d，实际 %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestNamespaceSetActiveEndpoint(t *testing.T) {
	r, svc := newNamespaceRouter()
	if _, err := svc.Create("billing", 1, model.NamespaceSettings{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doRequest(t, r, http.MethodPatch, "/namespaces/1/active", `{"active":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d: %s", w.Code, w.Body.String())
	}

	list := doRequest(t, r, http.MethodGet, "/namespaces?active=true", "")
	var resp struct {
		Data []model.Namespace `json:"data"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(resp.Data) != 0 {
		t.Fatalf("停用后启用列表应为空，实际 %d 条", len(resp.Data))
	}
}
