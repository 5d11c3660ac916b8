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

// NamespaceService 接口定义了命名空间的全部业务操作。
type NamespaceService interface {
	Create(name string, ownerID uint, settings model.NamespaceSettings) (*model.Namespace, error)
	Get(id uint) (*model.Namespace, error)
	GetByName(name string) (*model.Namespace, error)
	List(activeOnly bool) ([]model.Namespace, error)
	UpdateSettings(id uint, settings model.NamespaceSettings) (*model.Namespace, error)
	// SetActive 启停命名空间。停用不删除任何数据，仅阻止新建下级实体和新运行。
	SetActive(id uint, active bool) (*model.Namespace, error)
	// Delete 删除命名空间及其整棵所有权树，操作不可恢复。
	Delete(id uint, principal string) error
}

type namespaceService struct {
	nsRepo repository.NamespaceRepository
}

// NewNamespaceService 创建一个新的 NamespaceService 实例。
func NewNamespaceService(nsRepo repository.NamespaceRepository) NamespaceService {
	return &namespaceService{nsRepo: nsRepo}
}

// Create 校验并创建命名空间。
func (s *namespaceService) Create(name string, ownerID uint, settings model.NamespaceSettings) (*model.Namespace, error) {
	// 1. 名称校验：至少 3 个字符，不超过 100
	name = strings.TrimSpace(name)
	if len(name) < 3 || len(name) > 100 {
		return nil, apperr.NewValidation("namespace.name.length", "名称长度必须在 3 到 100 之间，实际为 %d", len(name))
	}

	// 2. 全局唯一性检查（唯一索引兜底并发）
	if _, err := s.nsRepo.FindByName(name); err == nil {
		return nil, apperr.NewValidation("namespace.name.unique", "名称 '%s' 已被占用", name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if settings.RetentionDays < 0 {
		return nil, apperr.NewValidation("namespace.settings.retentionDays", "保留天数不能为负数")
	}

	// 3. 落库
	ns := &model.Namespace{
		Name:     name,
		OwnerID:  ownerID,
		IsActive: true,
		Settings: settings,
	}
	if err := s.nsRepo.Create(ns); err != nil {
		return nil, err
	}
	log.Infof("[NamespaceService] 命名空间已创建, id: %d, name: %s", ns.ID, ns.Name)
	return ns, nil
}

// Get 根据 ID 获取命名空间。
func (s *namespaceService) Get(id uint) (*model.Namespace, error) {
	ns, err := s.nsRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("namespace", strconv.FormatUint(uint64(id), 10))
		}
		return nil, err
	}
	return ns, nil
}

// GetByName 根据名称获取命名空间。
func (s *namespaceService) GetByName(name string) (*model.Namespace, error) {
	ns, err := s.nsRepo.FindByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("namespace", name)
		}
		return nil, err
	}
	return ns, nil
}

// List 获取命名空间列表。
func (s *namespaceService) List(activeOnly bool) ([]model.Namespace, error) {
	return s.nsRepo.FindAll(activeOnly)
}

// UpdateSettings 整体替换命名空间的配置文档。
func (s *namespaceService) UpdateSettings(id uint, settings model.NamespaceSettings) (*model.Namespace, error) {
	ns, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if settings.RetentionDays < 0 {
		return nil, apperr.NewValidation("namespace.settings.retentionDays", "保留天数不能为负数")
	}
	ns.Settings = settings
	if err := s.nsRepo.Update(ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// SetActive 启停命名空间。
func (s *namespaceService) SetActive(id uint, active bool) (*model.Namespace, error) {
	ns, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	ns.IsActive = active
	if err := s.nsRepo.Update(ns); err != nil {
		return nil, err
	}
	log.Infof("[NamespaceService] 命名空间状态已变更, id: %d, active: %t", id, active)
	return ns, nil
}

// Delete 级联删除命名空间。
func (s *namespaceService) Delete(id uint, principal string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.nsRepo.DeleteCascade(id); err != nil {
		return err
	}
	log.Infow("命名空间已级联删除", "namespaceId", id, "principal", principal)
	return nil
}
