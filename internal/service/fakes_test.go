package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"extractlab-go/internal/model"
)

// 内存版仓储实现，行为与 SQL 实现对齐：未命中返回 gorm.ErrRecordNotFound，
// Transition 仅在当前状态匹配时生效。

type fakeNamespaceRepo struct {
	mu     sync.Mutex
	nextID uint
	items  map[uint]model.Namespace
}

func newFakeNamespaceRepo() *fakeNamespaceRepo {
	return &fakeNamespaceRepo{items: make(map[uint]model.Namespace)}
}

func (f *fakeNamespaceRepo) Create(ns *model.Namespace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ns.ID = f.nextID
	f.items[ns.ID] = *ns
	return nil
}

func (f *fakeNamespaceRepo) FindByID(id uint) (*model.Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ns, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &ns, nil
}

func (f *fakeNamespaceRepo) FindByName(name string) (*model.Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ns := range f.items {
		if ns.Name == name {
			return &ns, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeNamespaceRepo) FindAll(activeOnly bool) ([]model.Namespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Namespace
	for _, ns := range f.items {
		if activeOnly && !ns.IsActive {
			continue
		}
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeNamespaceRepo) Update(ns *model.Namespace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[ns.ID] = *ns
	return nil
}

func (f *fakeNamespaceRepo) DeleteCascade(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeUseCaseRepo struct {
	mu     sync.Mutex
	nextID uint
	items  map[uint]model.UseCase
}

func newFakeUseCaseRepo() *fakeUseCaseRepo {
	return &fakeUseCaseRepo{items: make(map[uint]model.UseCase)}
}

func (f *fakeUseCaseRepo) Create(uc *model.UseCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	uc.ID = f.nextID
	f.items[uc.ID] = *uc
	return nil
}

func (f *fakeUseCaseRepo) FindByID(id uint) (*model.UseCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uc, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &uc, nil
}

func (f *fakeUseCaseRepo) FindByName(namespaceID uint, name string) (*model.UseCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, uc := range f.items {
		if uc.NamespaceID == namespaceID && uc.Name == name {
			return &uc, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUseCaseRepo) FindByNamespace(namespaceID uint, activeOnly bool) ([]model.UseCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UseCase
	for _, uc := range f.items {
		if uc.NamespaceID != namespaceID {
			continue
		}
		if activeOnly && !uc.IsActive {
			continue
		}
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUseCaseRepo) Update(uc *model.UseCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[uc.ID] = *uc
	return nil
}

func (f *fakeUseCaseRepo) DeleteCascade(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeTemplateRepo struct {
	mu     sync.Mutex
	nextID uint
	items  map[uint]model.Template
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{items: make(map[uint]model.Template)}
}

func (f *fakeTemplateRepo) CreateVersion(tpl *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxVersion := 0
	for _, t := range f.items {
		if t.UseCaseID == tpl.UseCaseID && t.Name == tpl.Name && t.Version > maxVersion {
			maxVersion = t.Version
		}
	}
	tpl.Version = maxVersion + 1
	f.nextID++
	tpl.ID = f.nextID
	f.items[tpl.ID] = *tpl
	return nil
}

func (f *fakeTemplateRepo) FindByID(id uint) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &tpl, nil
}

func (f *fakeTemplateRepo) FindVersion(useCaseID uint, name string, version int) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.items {
		if t.UseCaseID == useCaseID && t.Name == name && t.Version == version {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTemplateRepo) FindLatest(useCaseID uint, name string) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Template
	for _, t := range f.items {
		t := t
		if t.UseCaseID == useCaseID && t.Name == name {
			if best == nil || t.Version > best.Version {
				best = &t
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (f *fakeTemplateRepo) FindVersions(useCaseID uint, name string) ([]model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Template
	for _, t := range f.items {
		if t.UseCaseID == useCaseID && t.Name == name {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeTemplateRepo) FindByUseCase(useCaseID uint, activeOnly bool) ([]model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Template
	for _, t := range f.items {
		if t.UseCaseID != useCaseID {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTemplateRepo) Update(tpl *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[tpl.ID] = *tpl
	return nil
}

func (f *fakeTemplateRepo) DeleteCascade(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakePromptRepo struct {
	mu     sync.Mutex
	nextID uint
	items  map[uint]model.Prompt
}

func newFakePromptRepo() *fakePromptRepo {
	return &fakePromptRepo{items: make(map[uint]model.Prompt)}
}

func (f *fakePromptRepo) CreateVersion(p *model.Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxVersion := 0
	for _, q := range f.items {
		if q.TemplateID == p.TemplateID && q.Name == p.Name && q.Version > maxVersion {
			maxVersion = q.Version
		}
	}
	p.Version = maxVersion + 1
	f.nextID++
	p.ID = f.nextID
	f.items[p.ID] = *p
	return nil
}

func (f *fakePromptRepo) FindByID(id uint) (*model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f *fakePromptRepo) FindVersion(templateID uint, name string, version int) (*model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.items {
		if p.TemplateID == templateID && p.Name == name && p.Version == version {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePromptRepo) FindLatest(templateID uint, name string) (*model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Prompt
	for _, p := range f.items {
		p := p
		if p.TemplateID == templateID && p.Name == name {
			if best == nil || p.Version > best.Version {
				best = &p
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (f *fakePromptRepo) FindActive(templateID uint, name string) (*model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Prompt
	for _, p := range f.items {
		p := p
		if p.TemplateID == templateID && p.Name == name && p.IsActive {
			if best == nil || p.Version > best.Version {
				best = &p
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (f *fakePromptRepo) FindVersions(templateID uint, name string) ([]model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Prompt
	for _, p := range f.items {
		if p.TemplateID == templateID && p.Name == name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakePromptRepo) FindByTemplate(templateID uint, activeOnly bool) ([]model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Prompt
	for _, p := range f.items {
		if p.TemplateID != templateID {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePromptRepo) Update(p *model.Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[p.ID] = *p
	return nil
}

func (f *fakePromptRepo) Delete(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeRunRepo struct {
	mu    sync.Mutex
	items map[string]model.ExtractionRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{items: make(map[string]model.ExtractionRun)}
}

func (f *fakeRunRepo) Create(run *model.ExtractionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[run.ID] = *run
	return nil
}

func (f *fakeRunRepo) FindByID(id string) (*model.ExtractionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &run, nil
}

func (f *fakeRunRepo) FindByTemplate(templateID uint, status string) ([]model.ExtractionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExtractionRun
	for _, r := range f.items {
		if r.TemplateID != templateID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRunRepo) FindByPrompt(promptID uint) ([]model.ExtractionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExtractionRun
	for _, r := range f.items {
		if r.PromptID == promptID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRunRepo) Transition(id string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.items[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range fromStatuses {
		if run.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	applyRunUpdates(&run, updates)
	f.items[id] = run
	return true, nil
}

func (f *fakeRunRepo) CachedStatus(ctx context.Context, id string) (string, error) {
	run, err := f.FindByID(id)
	if err != nil {
		return "", err
	}
	return run.Status, nil
}

func (f *fakeRunRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

// applyRunUpdates 模拟 gorm 按列名更新的行为。
func applyRunUpdates(run *model.ExtractionRun, updates map[string]interface{}) {
	for col, v := range updates {
		switch col {
		case "status":
			run.Status = v.(string)
		case "started_at":
			run.StartedAt = v.(time.Time)
		case "completed_at":
			t := v.(time.Time)
			run.CompletedAt = &t
		case "error_message":
			run.ErrorMessage = v.(string)
		case "output_uri":
			s := v.(string)
			run.OutputURI = &s
		case "confidence":
			c := v.(float64)
			run.Confidence = &c
		case "processing_time_ms":
			run.ProcessingTimeMs = v.(int64)
		case "model_used":
			run.ModelUsed = v.(string)
		}
	}
}

type fakeEvaluationRepo struct {
	mu    sync.Mutex
	items map[string]model.EvaluationRun
	runs  *fakeRunRepo
}

func newFakeEvaluationRepo(runs *fakeRunRepo) *fakeEvaluationRepo {
	return &fakeEvaluationRepo{items: make(map[string]model.EvaluationRun), runs: runs}
}

func (f *fakeEvaluationRepo) Create(ev *model.EvaluationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[ev.ID] = *ev
	return nil
}

func (f *fakeEvaluationRepo) FindByID(id string) (*model.EvaluationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &ev, nil
}

func (f *fakeEvaluationRepo) FindByRun(extractionRunID string) ([]model.EvaluationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EvaluationRun
	for _, ev := range f.items {
		if ev.ExtractionRunID == extractionRunID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEvaluationRepo) FindLatestByType(extractionRunID, evaluatorType string) (*model.EvaluationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.EvaluationRun
	for _, ev := range f.items {
		ev := ev
		if ev.ExtractionRunID == extractionRunID && ev.EvaluatorType == evaluatorType {
			if best == nil || ev.CreatedAt.After(best.CreatedAt) {
				best = &ev
			}
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (f *fakeEvaluationRepo) FindByPrompt(promptID uint) ([]model.EvaluationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EvaluationRun
	for _, ev := range f.items {
		run, err := f.runs.FindByID(ev.ExtractionRunID)
		if err != nil {
			continue
		}
		if run.PromptID == promptID {
			out = append(out, ev)
		}
	}
	return out, nil
}
