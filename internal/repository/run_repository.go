package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"extractlab-go/internal/model"
	"extractlab-go/pkg/log"
)

// 运行状态在 Redis 中的缓存键前缀和过期时间。
// 轮询场景下读缓存避免反复击穿数据库。
const (
	runStatusKeyPrefix = "run:status:"
	runStatusTTL       = 24 * time.Hour
)

// RunRepository 接口定义了抽取运行的数据持久化操作。
type RunRepository interface {
	Create(run *model.ExtractionRun) error
	FindByID(id string) (*model.ExtractionRun, error)
	FindByTemplate(templateID uint, status string) ([]model.ExtractionRun, error)
	FindByPrompt(promptID uint) ([]model.ExtractionRun, error)
	// Transition 执行条件更新：仅当当前状态在 fromStatuses 中时才应用 updates。
	// 返回是否恰好命中一行。终态吸收性由该守卫保证，并发竞争时只有一方成功。
	Transition(id string, fromStatuses []string, updates map[string]interface{}) (bool, error)
	// CachedStatus 优先从 Redis 读取运行状态，未命中时回源数据库并回填。
	CachedStatus(ctx context.Context, id string) (string, error)
	Delete(id string) error
}

type runRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewRunRepository 创建一个新的 RunRepository 实例。
func NewRunRepository(db *gorm.DB, rdb *redis.Client) RunRepository {
	return &runRepository{db: db, rdb: rdb}
}

// Create 插入运行记录并写入状态缓存。
func (r *runRepository) Create(run *model.ExtractionRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return err
	}
	r.cacheStatus(run.ID, run.Status)
	return nil
}

// FindByID 根据 ID 查找运行记录。
func (r *runRepository) FindByID(id string) (*model.ExtractionRun, error) {
	var run model.ExtractionRun
	if err := r.db.Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// FindByTemplate 检索模板下的运行列表；status 为空时不按状态过滤。
func (r *runRepository) FindByTemplate(templateID uint, status string) ([]model.ExtractionRun, error) {
	var list []model.ExtractionRun
	q := r.db.Where("template_id = ?", templateID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at desc").Find(&list).Error
	return list, err
}

// FindByPrompt 检索提示词下的运行列表，按创建时间倒序。
func (r *runRepository) FindByPrompt(promptID uint) ([]model.ExtractionRun, error) {
	var list []model.ExtractionRun
	err := r.db.Where("prompt_id = ?", promptID).Order("created_at desc").Find(&list).Error
	return list, err
}

// Transition 条件更新运行状态，命中行数为 1 时返回 true。
func (r *runRepository) Transition(id string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	res := r.db.Model(&model.ExtractionRun{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	if s, ok := updates["status"].(string); ok {
		r.cacheStatus(id, s)
	}
	return true, nil
}

// CachedStatus 从 Redis 读取状态，未命中时查库回填。
func (r *runRepository) CachedStatus(ctx context.Context, id string) (string, error) {
	key := runStatusKeyPrefix + id
	status, err := r.rdb.Get(ctx, key).Result()
	if err == nil {
		return status, nil
	}
	if err != redis.Nil {
		log.Warnf("读取运行状态缓存失败: %v", err)
	}

	run, err := r.FindByID(id)
	if err != nil {
		return "", err
	}
	r.cacheStatus(id, run.Status)
	return run.Status, nil
}

// Delete 删除运行记录及其评估，并清理状态缓存。
func (r *runRepository) Delete(id string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("extraction_run_id = ?", id).Delete(&model.EvaluationRun{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.ExtractionRun{}).Error
	})
	if err != nil {
		return err
	}
	if delErr := r.rdb.Del(context.Background(), runStatusKeyPrefix+id).Err(); delErr != nil {
		log.Warnf("清理运行状态缓存失败: %v", delErr)
	}
	return nil
}

// cacheStatus 写入状态缓存。缓存失败不影响主流程，数据库是唯一事实来源。
func (r *runRepository) cacheStatus(id, status string) {
	key := runStatusKeyPrefix + id
	if err := r.rdb.Set(context.Background(), key, status, runStatusTTL).Err(); err != nil {
		log.Warnf("写入运行状态缓存失败: %s, %v", fmt.Sprintf("%s=%s", key, status), err)
	}
}
