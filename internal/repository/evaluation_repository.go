package repository

import (
	"gorm.io/gorm"

	"extractlab-go/internal/model"
)

// EvaluationRepository 接口定义了评估运行的数据持久化操作。
type EvaluationRepository interface {
	Create(ev *model.EvaluationRun) error
	FindByID(id string) (*model.EvaluationRun, error)
	// FindByRun 返回某次抽取运行的全部评估，按创建时间倒序。
	FindByRun(extractionRunID string) ([]model.EvaluationRun, error)
	// FindLatestByType 返回某次运行下指定评估方式的最新一条记录。
	FindLatestByType(extractionRunID, evaluatorType string) (*model.EvaluationRun, error)
	FindByPrompt(promptID uint) ([]model.EvaluationRun, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository 创建一个新的 EvaluationRepository 实例。
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// Create 插入评估记录。
func (r *evaluationRepository) Create(ev *model.EvaluationRun) error {
	return r.db.Create(ev).Error
}

// FindByID 根据 ID 查找评估记录。
func (r *evaluationRepository) FindByID(id string) (*model.EvaluationRun, error) {
	var ev model.EvaluationRun
	if err := r.db.Where("id = ?", id).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindByRun 检索某次抽取运行的评估历史。
func (r *evaluationRepository) FindByRun(extractionRunID string) ([]model.EvaluationRun, error) {
	var list []model.EvaluationRun
	err := r.db.Where("extraction_run_id = ?", extractionRunID).
		Order("created_at desc").Find(&list).Error
	return list, err
}

// FindLatestByType 检索指定评估方式的最新记录。
func (r *evaluationRepository) FindLatestByType(extractionRunID, evaluatorType string) (*model.EvaluationRun, error) {
	var ev model.EvaluationRun
	err := r.db.Where("extraction_run_id = ? AND evaluator_type = ?", extractionRunID, evaluatorType).
		Order("created_at desc").First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// FindByPrompt 通过运行表关联检索某个提示词版本产生的全部评估，
// 供迭代控制器重建版本谱系使用。
func (r *evaluationRepository) FindByPrompt(promptID uint) ([]model.EvaluationRun, error) {
	var list []model.EvaluationRun
	err := r.db.
		Joins("JOIN extraction_runs ON extraction_runs.id = evaluation_runs.extraction_run_id").
		Where("extraction_runs.prompt_id = ?", promptID).
		Order("evaluation_runs.created_at desc").
		Find(&list).Error
	return list, err
}
