package service

import (
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
	"extractlab-go/internal/repository"
	"extractlab-go/pkg/log"
)

// PromptService 接口定义了提示词的全部业务操作。
// 与模板一致，提示词按版本插入并保留完整历史。
type PromptService interface {
	CreateVersion(templateID uint, name, content, promptType string, cfg model.PromptModelConfig) (*model.Prompt, error)
	Get(id uint) (*model.Prompt, error)
	GetVersion(templateID uint, name string, version int) (*model.Prompt, error)
	// GetActive 返回指定名称处于启用状态的最大版本。
	GetActive(templateID uint, name string) (*model.Prompt, error)
	ListVersions(templateID uint, name string) ([]model.Prompt, error)
	List(templateID uint, activeOnly bool) ([]model.Prompt, error)
	SetActive(id uint, active bool) (*model.Prompt, error)
	Delete(id uint, principal string) error
}

type promptService struct {
	promptRepo repository.PromptRepository
	tplRepo    repository.TemplateRepository
	runRepo    repository.RunRepository
}

// NewPromptService 创建一个新的 PromptService 实例。
func NewPromptService(promptRepo repository.PromptRepository, tplRepo repository.TemplateRepository, runRepo repository.RunRepository) PromptService {
	return &promptService{promptRepo: promptRepo, tplRepo: tplRepo, runRepo: runRepo}
}

// validPromptType 检查提示词类型是否在封闭集合内。
func validPromptType(t string) bool {
	for _, v := range model.ValidPromptTypes {
		if v == t {
			return true
		}
	}
	return false
}

// CreateVersion 校验并插入提示词的下一个版本。
func (s *promptService) CreateVersion(templateID uint, name, content, promptType string, cfg model.PromptModelConfig) (*model.Prompt, error) {
	// 1. 父引用检查
	tpl, err := s.tplRepo.FindByID(templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("template", strconv.FormatUint(uint64(templateID), 10))
		}
		return nil, err
	}
	if !tpl.IsActive {
		return nil, apperr.NewPrecondition("prompt.create", "模板 '%s' v%d 已停用，不能新建提示词版本", tpl.Name, tpl.Version)
	}

	// 2. 字段校验
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, apperr.NewValidation("prompt.name.length", "名称不能为空且不超过 100 个字符")
	}
	if len(strings.TrimSpace(content)) < 10 {
		return nil, apperr.NewValidation("prompt.content.length", "提示词正文至少 10 个字符")
	}
	if !validPromptType(promptType) {
		return nil, apperr.NewValidation("prompt.type", "未知的提示词类型 '%s'", promptType)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, apperr.NewValidation("prompt.modelConfig.temperature", "temperature 必须位于 [0, 2]")
	}
	if cfg.MaxTokens < 0 {
		return nil, apperr.NewValidation("prompt.modelConfig.maxTokens", "maxTokens 不能为负数")
	}

	p := &model.Prompt{
		TemplateID:  templateID,
		Name:        name,
		Content:     content,
		Type:        promptType,
		IsActive:    true,
		ModelConfig: cfg,
	}
	if err := s.promptRepo.CreateVersion(p); err != nil {
		return nil, err
	}
	log.Infof("[PromptService] 提示词版本已创建, id: %d, name: %s, version: %d", p.ID, name, p.Version)
	return p, nil
}

// Get 根据 ID 获取提示词。
func (s *promptService) Get(id uint) (*model.Prompt, error) {
	p, err := s.promptRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("prompt", strconv.FormatUint(uint64(id), 10))
		}
		return nil, err
	}
	return p, nil
}

// GetVersion 获取提示词的某一具体版本。
func (s *promptService) GetVersion(templateID uint, name string, version int) (*model.Prompt, error) {
	p, err := s.promptRepo.FindVersion(templateID, name, version)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("prompt", name+"@v"+strconv.Itoa(version))
		}
		return nil, err
	}
	return p, nil
}

// GetActive 获取启用状态的最大版本。
func (s *promptService) GetActive(templateID uint, name string) (*model.Prompt, error) {
	p, err := s.promptRepo.FindActive(templateID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("prompt", name)
		}
		return nil, err
	}
	return p, nil
}

// ListVersions 按版本号升序返回提示词的完整版本历史。
func (s *promptService) ListVersions(templateID uint, name string) ([]model.Prompt, error) {
	return s.promptRepo.FindVersions(templateID, name)
}

// List 获取模板下的提示词列表。
func (s *promptService) List(templateID uint, activeOnly bool) ([]model.Prompt, error) {
	return s.promptRepo.FindByTemplate(templateID, activeOnly)
}

// SetActive 启停单个提示词版本。历史运行仍固定引用原版本。
func (s *promptService) SetActive(id uint, active bool) (*model.Prompt, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	p.IsActive = active
	if err := s.promptRepo.Update(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete 删除单个提示词版本。存在未完结运行时拒绝删除，
// 已完结运行保留提示词 ID 作为历史引用。
func (s *promptService) Delete(id uint, principal string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	runs, err := s.runRepo.FindByPrompt(id)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if !model.IsTerminalRunStatus(run.Status) {
			return apperr.NewPrecondition("prompt.delete", "提示词仍被未完结的运行 %s 引用", run.ID)
		}
	}

	if err := s.promptRepo.Delete(id); err != nil {
		return err
	}
	log.Infow("提示词版本已删除", "promptId", id, "principal", principal)
	return nil
}
