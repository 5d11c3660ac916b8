package repository

import (
	"gorm.io/gorm"

	"extractlab-go/internal/model"
)

// UseCaseRepository 接口定义了用例的数据持久化操作。
type UseCaseRepository interface {
	Create(uc *model.UseCase) error
	FindByID(id uint) (*model.UseCase, error)
	FindByName(namespaceID uint, name string) (*model.UseCase, error)
	FindByNamespace(namespaceID uint, activeOnly bool) ([]model.UseCase, error)
	Update(uc *model.UseCase) error
	DeleteCascade(id uint) error
}

type useCaseRepository struct {
	db *gorm.DB
}

// NewUseCaseRepository 创建一个新的 UseCaseRepository 实例。
func NewUseCaseRepository(db *gorm.DB) UseCaseRepository {
	return &useCaseRepository{db: db}
}

// Create 在数据库中插入一个新的用例记录。
// 唯一索引 uk_usecase_ns_name 保证同一命名空间下名称不重复。
func (r *useCaseRepository) Create(uc *model.UseCase) error {
	return r.db.Create(uc).Error
}

// FindByID 根据 ID 查找用例。
func (r *useCaseRepository) FindByID(id uint) (*model.UseCase, error) {
	var uc model.UseCase
	if err := r.db.First(&uc, id).Error; err != nil {
		return nil, err
	}
	return &uc, nil
}

// FindByName 在指定命名空间下按名称查找用例。
func (r *useCaseRepository) FindByName(namespaceID uint, name string) (*model.UseCase, error) {
	var uc model.UseCase
	err := r.db.Where("namespace_id = ? AND name = ?", namespaceID, name).First(&uc).Error
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// FindByNamespace 检索命名空间下的用例列表。
func (r *useCaseRepository) FindByNamespace(namespaceID uint, activeOnly bool) ([]model.UseCase, error) {
	var list []model.UseCase
	q := r.db.Where("namespace_id = ?", namespaceID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("id asc").Find(&list).Error
	return list, err
}

// Update 更新一个已存在的用例记录。
func (r *useCaseRepository) Update(uc *model.UseCase) error {
	return r.db.Save(uc).Error
}

// DeleteCascade 在事务中删除用例及其全部后代。
func (r *useCaseRepository) DeleteCascade(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := deleteTemplatesCascade(tx, []uint{id}); err != nil {
			return err
		}
		return tx.Delete(&model.UseCase{}, id).Error
	})
}
