// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"extractlab-go/internal/model"
)

// NamespaceRepository 接口定义了命名空间的数据持久化操作。
type NamespaceRepository interface {
	Create(ns *model.Namespace) error
	FindByID(id uint) (*model.Namespace, error)
	FindByName(name string) (*model.Namespace, error)
	FindAll(activeOnly bool) ([]model.Namespace, error)
	Update(ns *model.Namespace) error
	// DeleteCascade 在单个事务中删除命名空间及其全部后代：
	// 依次为用例、模板、提示词、抽取运行、评估运行。
	// 级联由本层显式执行而非数据库触发器，保证逻辑可独立测试。
	DeleteCascade(id uint) error
}

type namespaceRepository struct {
	db *gorm.DB
}

// NewNamespaceRepository 创建一个新的 NamespaceRepository 实例。
func NewNamespaceRepository(db *gorm.DB) NamespaceRepository {
	return &namespaceRepository{db: db}
}

// Create 在数据库中插入一个新的命名空间记录。
func (r *namespaceRepository) Create(ns *model.Namespace) error {
	return r.db.Create(ns).Error
}

// FindByID 根据 ID 查找命名空间。
func (r *namespaceRepository) FindByID(id uint) (*model.Namespace, error) {
	var ns model.Namespace
	if err := r.db.First(&ns, id).Error; err != nil {
		return nil, err
	}
	return &ns, nil
}

// FindByName 根据名称查找命名空间（含已停用的，供历史查询使用）。
func (r *namespaceRepository) FindByName(name string) (*model.Namespace, error) {
	var ns model.Namespace
	if err := r.db.Where("name = ?", name).First(&ns).Error; err != nil {
		return nil, err
	}
	return &ns, nil
}

// FindAll 检索命名空间列表；activeOnly 为 true 时排除已停用的记录。
func (r *namespaceRepository) FindAll(activeOnly bool) ([]model.Namespace, error) {
	var list []model.Namespace
	q := r.db
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("id asc").Find(&list).Error
	return list, err
}

// Update 更新一个已存在的命名空间记录。
func (r *namespaceRepository) Update(ns *model.Namespace) error {
	return r.db.Save(ns).Error
}

// DeleteCascade 自顶向下删除命名空间的整棵所有权树。
func (r *namespaceRepository) DeleteCascade(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var useCaseIDs []uint
		if err := tx.Model(&model.UseCase{}).Where("namespace_id = ?", id).
			Pluck("id", &useCaseIDs).Error; err != nil {
			return err
		}

		if len(useCaseIDs) > 0 {
			if err := deleteTemplatesCascade(tx, useCaseIDs); err != nil {
				return err
			}
			if err := tx.Where("namespace_id = ?", id).Delete(&model.UseCase{}).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&model.Namespace{}, id).Error
	})
}

// deleteTemplatesCascade 删除给定用例下的模板及其后代（提示词、运行、评估）。
// 供命名空间与用例两级的级联删除复用，必须运行在调用方的事务内。
func deleteTemplatesCascade(tx *gorm.DB, useCaseIDs []uint) error {
	var templateIDs []uint
	if err := tx.Model(&model.Template{}).Where("use_case_id IN ?", useCaseIDs).
		Pluck("id", &templateIDs).Error; err != nil {
		return err
	}
	if len(templateIDs) == 0 {
		return nil
	}

	var runIDs []string
	if err := tx.Model(&model.ExtractionRun{}).Where("template_id IN ?", templateIDs).
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

	if err := tx.Where("template_id IN ?", templateIDs).Delete(&model.Prompt{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", templateIDs).Delete(&model.Template{}).Error
}
