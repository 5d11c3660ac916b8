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

// UseCaseService 接口定义了用例的全部业务操作。
type UseCaseService interface {
	Create(namespaceID uint, name string, ownerID uint, ingestionType string, cfg model.IngestionConfig) (*model.UseCase, error)
	Get(id uint) (*model.UseCase, error)
	List(namespaceID uint, activeOnly bool) ([]model.UseCase, error)
	UpdateIngestion(id uint, ingestionType string, cfg model.IngestionConfig) (*model.UseCase, error)
	SetActive(id uint, active bool) (*model.UseCase, error)
	Delete(id uint, principal string) error
}

type useCaseService struct {
	ucRepo repository.UseCaseRepository
	nsRepo repository.NamespaceRepository
}

// NewUseCaseService 创建一个新的 UseCaseService 实例。
func NewUseCaseService(ucRepo repository.UseCaseRepository, nsRepo repository.NamespaceRepository) UseCaseService {
	return &useCaseService{ucRepo: ucRepo, nsRepo: nsRepo}
}

// validIngestionType 检查摄取类型是否在封闭集合内。
func validIngestionType(t string) bool {
	for _, v := range model.ValidIngestionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Create 校验并创建用例。父命名空间必须存在且处于启用状态。
func (s *useCaseService) Create(namespaceID uint, name string, ownerID uint, ingestionType string, cfg model.IngestionConfig) (*model.UseCase, error) {
	// 1. 父引用检查
	ns, err := s.nsRepo.FindByID(namespaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("namespace", strconv.FormatUint(uint64(namespaceID), 10))
		}
		return nil, err
	}
	if !ns.IsActive {
		return nil, apperr.NewPrecondition("usecase.create", "命名空间 '%s' 已停用，不能新建用例", ns.Name)
	}

	// 2. 字段校验
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, apperr.NewValidation("usecase.name.length", "名称不能为空且不超过 100 个字符")
	}
	if !validIngestionType(ingestionType) {
		return nil, apperr.NewValidation("usecase.ingestionType", "未知的摄取类型 '%s'", ingestionType)
	}

	// 3. 命名空间内唯一性检查
	if _, err := s.ucRepo.FindByName(namespaceID, name); err == nil {
		return nil, apperr.NewValidation("usecase.name.unique", "用例 '%s' 在该命名空间下已存在", name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	uc := &model.UseCase{
		NamespaceID:     namespaceID,
		Name:            name,
		OwnerID:         ownerID,
		IngestionType:   ingestionType,
		IngestionConfig: cfg,
		IsActive:        true,
	}
	if err := s.ucRepo.Create(uc); err != nil {
		return nil, err
	}
	log.Infof("[UseCaseService] 用例已创建, id: %d, namespace: %d, name: %s", uc.ID, namespaceID, name)
	return uc, nil
}

// Get 根据 ID 获取用例。
func (s *useCaseService) Get(id uint) (*model.UseCase, error) {
	uc, err := s.ucRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("usecase", strconv.FormatUint(uint64(id), 10))
		}
		return nil, err
	}
	return uc, nil
}

// List 获取命名空间下的用例列表。
func (s *useCaseService) List(namespaceID uint, activeOnly bool) ([]model.UseCase, error) {
	return s.ucRepo.FindByNamespace(namespaceID, activeOnly)
}

// UpdateIngestion 更新用例的摄取类型和配置。
func (s *useCaseService) UpdateIngestion(id uint, ingestionType string, cfg model.IngestionConfig) (*model.UseCase, error) {
	uc, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !validIngestionType(ingestionType) {
		return nil, apperr.NewValidation("usecase.ingestionType", "未知的摄取类型 '%s'", ingestionType)
	}
	uc.IngestionType = ingestionType
	uc.IngestionConfig = cfg
	if err := s.ucRepo.Update(uc); err != nil {
		return nil, err
	}
	return uc, nil
}

// SetActive 启停用例。
func (s *useCaseService) SetActive(id uint, active bool) (*model.UseCase, error) {
	uc, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	uc.IsActive = active
	if err := s.ucRepo.Update(uc); err != nil {
		return nil, err
	}
	return uc, nil
}

// Delete 级联删除用例及其下级实体。
func (s *useCaseService) Delete(id uint, principal string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.ucRepo.DeleteCascade(id); err != nil {
		return err
	}
	log.Infow("用例已级联删除", "useCaseId", id, "principal", principal)
	return nil
}
