package repository

import (
	"gorm.io/gorm"

	"extractlab-go/internal/model"
)

// PromptRepository 接口定义了提示词的数据持久化操作。
// 版本管理策略与模板一致：修改即插入新版本。
type PromptRepository interface {
	CreateVersion(p *model.Prompt) error
	FindByID(id uint) (*model.Prompt, error)
	FindVersion(templateID uint, name string, version int) (*model.Prompt, error)
	FindLatest(templateID uint, name string) (*model.Prompt, error)
	// FindActive 返回指定名称处于启用状态的最大版本，供运行创建时默认选择。
	FindActive(templateID uint, name string) (*model.Prompt, error)
	FindVersions(templateID uint, name string) ([]model.Prompt, error)
	FindByTemplate(templateID uint, activeOnly bool) ([]model.Prompt, error)
	Update(p *model.Prompt) error
	Delete(id uint) error
}

type promptRepository struct {
	db *gorm.DB
}

// NewPromptRepository 创建一个新的 PromptRepository 实例。
func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &promptRepository{db: db}
}

// CreateVersion 原子地完成 max(version)+1 的计算和插入。
func (r *promptRepository) CreateVersion(p *model.Prompt) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		err := tx.Model(&model.Prompt{}).
			Where("template_id = ? AND name = ?", p.TemplateID, p.Name).
			Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error
		if err != nil {
			return err
		}
		p.Version = maxVersion + 1
		return tx.Create(p).Error
	})
}

// FindByID 根据 ID 查找提示词。
func (r *promptRepository) FindByID(id uint) (*model.Prompt, error) {
	var p model.Prompt
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindVersion 查找指定名称的某一具体版本。
func (r *promptRepository) FindVersion(templateID uint, name string, version int) (*model.Prompt, error) {
	var p model.Prompt
	err := r.db.Where("template_id = ? AND name = ? AND version = ?", templateID, name, version).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindLatest 查找指定名称的最新版本（不论启停状态）。
func (r *promptRepository) FindLatest(templateID uint, name string) (*model.Prompt, error) {
	var p model.Prompt
	err := r.db.Where("template_id = ? AND name = ?", templateID, name).
		Order("version desc").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindActive 查找指定名称处于启用状态的最大版本。
func (r *promptRepository) FindActive(templateID uint, name string) (*model.Prompt, error) {
	var p model.Prompt
	err := r.db.Where("template_id = ? AND name = ? AND is_active = ?", templateID, name, true).
		Order("version desc").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindVersions 按版本号升序返回指定名称的全部历史版本。
func (r *promptRepository) FindVersions(templateID uint, name string) ([]model.Prompt, error) {
	var list []model.Prompt
	err := r.db.Where("template_id = ? AND name = ?", templateID, name).
		Order("version asc").Find(&list).Error
	return list, err
}

// FindByTemplate 检索模板下的提示词列表。
func (r *promptRepository) FindByTemplate(templateID uint, activeOnly bool) ([]model.Prompt, error) {
	var list []model.Prompt
	q := r.db.Where("template_id = ?", templateID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("name asc, version asc").Find(&list).Error
	return list, err
}

// Update 更新提示词的非版本化元数据（启停状态等）。
func (r *promptRepository) Update(p *model.Prompt) error {
	return r.db.Save(p).Error
}

// Delete 删除单个提示词版本。运行记录保留提示词 ID 作为历史引用，
// 删除前由服务层确认不存在未完结的运行。
func (r *promptRepository) Delete(id uint) error {
	return r.db.Delete(&model.Prompt{}, id).Error
}
