package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"path"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
	"extractlab-go/internal/repository"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/storage"
)

// 样例文档允许的扩展名。
var sampleDocumentExts = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".tiff": true, ".docx": true, ".txt": true,
}

// TemplateService 接口定义了模板的全部业务操作。
// 模板内容不可变：每次修改都会创建新版本并保留历史。
type TemplateService interface {
	CreateVersion(useCaseID uint, name, sampleDocURI, groundTruthURI string, schema json.RawMessage) (*model.Template, error)
	Get(id uint) (*model.Template, error)
	GetVersion(useCaseID uint, name string, version int) (*model.Template, error)
	GetLatest(useCaseID uint, name string) (*model.Template, error)
	ListVersions(useCaseID uint, name string) ([]model.Template, error)
	List(useCaseID uint, activeOnly bool) ([]model.Template, error)
	SetActive(id uint, active bool) (*model.Template, error)
	Delete(id uint, principal string) error
}

type templateService struct {
	tplRepo repository.TemplateRepository
	ucRepo  repository.UseCaseRepository
}

// NewTemplateService 创建一个新的 TemplateService 实例。
func NewTemplateService(tplRepo repository.TemplateRepository, ucRepo repository.UseCaseRepository) TemplateService {
	return &templateService{tplRepo: tplRepo, ucRepo: ucRepo}
}

// CreateVersion 校验并插入模板的下一个版本。
func (s *templateService) CreateVersion(useCaseID uint, name, sampleDocURI, groundTruthURI string, schema json.RawMessage) (*model.Template, error) {
	// 1. 父引用检查
	uc, err := s.ucRepo.FindByID(useCaseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("usecase", strconv.FormatUint(uint64(useCaseID), 10))
		}
		return nil, err
	}
	if !uc.IsActive {
		return nil, apperr.NewPrecondition("template.create", "用例 '%s' 已停用，不能新建模板版本", uc.Name)
	}

	// 2. 字段校验
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, apperr.NewValidation("template.name.length", "名称不能为空且不超过 100 个字符")
	}
	if err := validateSampleDocumentURI(sampleDocURI); err != nil {
		return nil, err
	}
	if err := validateGroundTruthURI(groundTruthURI); err != nil {
		return nil, err
	}
	if err := validateSchemaDefinition(schema); err != nil {
		return nil, err
	}

	// 3. 版本号由仓储层原子计算
	tpl := &model.Template{
		UseCaseID:         useCaseID,
		Name:              name,
		SampleDocumentURI: sampleDocURI,
		GroundTruthURI:    groundTruthURI,
		SchemaDefinition:  schema,
		IsActive:          true,
	}
	if err := s.tplRepo.CreateVersion(tpl); err != nil {
		return nil, err
	}
	log.Infof("[TemplateService] 模板版本已创建, id: %d, name: %s, version: %d", tpl.ID, name, tpl.Version)
	return tpl, nil
}

// validateSampleDocumentURI 校验样例文档地址的格式与扩展名。
func validateSampleDocumentURI(uri string) error {
	_, object, err := storage.ParseURI(uri)
	if err != nil {
		return apperr.NewValidation("template.sampleDocumentUri", "无效的文档地址: %v", err)
	}
	ext := strings.ToLower(path.Ext(object))
	if !sampleDocumentExts[ext] {
		return apperr.NewValidation("template.sampleDocumentUri", "不支持的文档扩展名 '%s'", ext)
	}
	return nil
}

// validateGroundTruthURI 校验标准答案地址：必须指向 JSON 对象。
func validateGroundTruthURI(uri string) error {
	_, object, err := storage.ParseURI(uri)
	if err != nil {
		return apperr.NewValidation("template.groundTruthUri", "无效的标准答案地址: %v", err)
	}
	if strings.ToLower(path.Ext(object)) != ".json" {
		return apperr.NewValidation("template.groundTruthUri", "标准答案必须是 .json 文档")
	}
	return nil
}

// validateSchemaDefinition 确认 schema 定义本身是可编译的 JSON Schema。
func validateSchemaDefinition(schema json.RawMessage) error {
	if len(schema) == 0 {
		return apperr.NewValidation("template.schemaDefinition", "schema 定义不能为空")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("template.json", bytes.NewReader(schema)); err != nil {
		return apperr.NewValidation("template.schemaDefinition", "schema 不是合法的 JSON: %v", err)
	}
	if _, err := compiler.Compile("template.json"); err != nil {
		return apperr.NewValidation("template.schemaDefinition", "schema 编译失败: %v", err)
	}
	return nil
}

// Get 根据 ID 获取模板。
func (s *templateService) Get(id uint) (*model.Template, error) {
	tpl, err := s.tplRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("template", strconv.FormatUint(uint64(id), 10))
		}
		return nil, err
	}
	return tpl, nil
}

// GetVersion 获取模板的某一具体版本。
func (s *templateService) GetVersion(useCaseID uint, name string, version int) (*model.Template, error) {
	tpl, err := s.tplRepo.FindVersion(useCaseID, name, version)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("template", name+"@v"+strconv.Itoa(version))
		}
		return nil, err
	}
	return tpl, nil
}

// GetLatest 获取模板的最新版本。
func (s *templateService) GetLatest(useCaseID uint, name string) (*model.Template, error) {
	tpl, err := s.tplRepo.FindLatest(useCaseID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewReferential("template", name)
		}
		return nil, err
	}
	return tpl, nil
}

// ListVersions 按版本号升序返回模板的完整版本历史。
func (s *templateService) ListVersions(useCaseID uint, name string) ([]model.Template, error) {
	return s.tplRepo.FindVersions(useCaseID, name)
}

// List 获取用例下的模板列表。
func (s *templateService) List(useCaseID uint, activeOnly bool) ([]model.Template, error) {
	return s.tplRepo.FindByUseCase(useCaseID, activeOnly)
}

// SetActive 启停单个模板版本。停用的版本不再被新运行选中，历史运行不受影响。
func (s *templateService) SetActive(id uint, active bool) (*model.Template, error) {
	tpl, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	tpl.IsActive = active
	if err := s.tplRepo.Update(tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Delete 级联删除单个模板版本及其提示词、运行和评估。
func (s *templateService) Delete(id uint, principal string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.tplRepo.DeleteCascade(id); err != nil {
		return err
	}
	log.Infow("模板版本已级联删除", "templateId", id, "principal", principal)
	return nil
}
