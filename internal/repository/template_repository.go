package repository

import (
	"gorm.io/gorm"

	"extractlab-go/internal/model"
)

// TemplateRepository 接口定义了模板的数据持久化操作。
// 模板采用插入式版本管理：同名模板的每次修改都会插入一条新版本记录，
// 历史版本永不被覆盖。
type TemplateRepository interface {
	// CreateVersion 在事务中计算下一个版本号并插入新版本。
	// 唯一索引 uk_template_uc_name_ver 兜底并发插入。
	CreateVersion(tpl *model.Template) error
	FindByID(id uint) (*model.Template, error)
	FindVersion(useCaseID uint, name string, version int) (*model.Template, error)
	// FindLatest 返回指定名称的最大版本号记录。
	FindLatest(useCaseID uint, name string) (*model.Template, error)
	FindVersions(useCaseID uint, name string) ([]model.Template, error)
	FindByUseCase(useCaseID uint, activeOnly bool) ([]model.Template, error)
	Update(tpl *model.Template) error
	DeleteCascade(id uint) error
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建一个新的 TemplateRepository 实例。
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// CreateVersion 原子地完成 max(version)+1 的计算和插入。
func (r *templateRepository) CreateVersion(tpl *model.Template) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		err := tx.Model(&model.Template{}).
			Where("use_case_id = ? AND name = ?", tpl.UseCaseID, tpl.Name).
			Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error
		if err != nil {
			return err
		}
		tpl.Version = maxVersion + 1
		return tx.Create(tpl).Error
	})
}

// FindByID 根据 ID 查找模板。
func (r *templateRepository) FindByID(id uint) (*model.Template, error) {
	var tpl model.Template
	if err := r.db.First(&tpl, id).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// FindVersion 查找指定名称的某一具体版本。
func (r *templateRepository) FindVersion(useCaseID uint, name string, version int) (*model.Template, error) {
	var tpl model.Template
	err := r.db.Where("use_case_id = ? AND name = ? AND version = ?", useCaseID, name, version).
		First(&tpl).Error
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// FindLatest 查找指定名称的最新版本。
func (r *templateRepository) FindLatest(useCaseID uint, name string) (*model.Template, error) {
	var tpl model.Template
	err := r.db.Where("use_case_id = ? AND name = ?", useCaseID, name).
		Order("version desc").First(&tpl).Error
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// FindVersions 按版本号升序返回指定名称的全部历史版本。
func (r *templateRepository) FindVersions(useCaseID uint, name string) ([]model.Template, error) {
	var list []model.Template
	err := r.db.Where("use_case_id = ? AND name = ?", useCaseID, name).
		Order("version asc").Find(&list).Error
	return list, err
}

// FindByUseCase 检索用例下的模板列表。
func (r *templateRepository) FindByUseCase(useCaseID uint, activeOnly bool) ([]model.Template, error) {
	var list []model.Template
	q := r.db.Where("use_case_id = ?", useCaseID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("name asc, version asc").Find(&list).Error
	return list, err
}

// Update 更新模板的非版本化元数据（启停状态、描述等）。
func (r *templateRepository) Update(tpl *model.Template) error {
	return r.db.Save(tpl).Error
}

// DeleteCascade 在事务中删除单个模板版本及其后代。
func (r *templateRepository) DeleteCascade(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var runIDs []string
		if err := tx.Model(&model.ExtractionRun{}).Where("template_id = ?", id).
			Pluck("id", &runIDs).Error; err != nil {
			return err
		}
		if len(runIDs) > 0 {
			if err := tx.Where("extraction_run_id IN ?", runIDs).Delete(&model.EvaluationRun{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", runIDs).Delete(&model.ExtractionRun{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("template_id = ?", id).Delete(&model.Prompt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Template{}, id).Error
	})
}
