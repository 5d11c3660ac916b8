// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 抽取运行的状态机：pending 先进入 running，再进入 completed、failed 或 cancelled。
// 终态吸收，不允许再次迁移。
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// IsTerminalRunStatus 判断给定状态是否为终态。
func IsTerminalRunStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// ExtractionRun 对应于数据库中的 'extraction_runs' 表。
// 每条记录是对单个输入文档应用某个固定提示词版本的一次尝试；
// 记录只追加，除状态迁移外不被更新，提示词引用在创建时固定、永不改指。
type ExtractionRun struct {
	// ID 是创建时生成的 UUID。
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID uint   `gorm:"not null;index" json:"templateId"`
	PromptID   uint   `gorm:"not null;index" json:"promptId"`
	// InputDocumentURI 指向待抽取的输入文档。
	InputDocumentURI string `gorm:"type:varchar(512);not null" json:"inputDocumentUri"`
	// OutputURI 在完成前为空；完成后指向不可变的输出对象。
	OutputURI *string `gorm:"type:varchar(512)" json:"outputUri"`
	Status    string  `gorm:"type:varchar(20);not null;index" json:"status"`
	StartedAt time.Time `gorm:"not null" json:"startedAt"`
	// CompletedAt 若存在则不早于 StartedAt。
	CompletedAt  *time.Time `json:"completedAt"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage"`
	// ProcessingTimeMs 是推理调用的耗时（毫秒）。
	ProcessingTimeMs int64  `gorm:"not null;default:0" json:"processingTimeMs"`
	ModelUsed        string `gorm:"type:varchar(100)" json:"modelUsed"`
	// Confidence 位于 [0,1]，完成前为空。
	Confidence *float64 `json:"confidence"`
	// RetryCount 表示这是第几次重试；重试总是创建新记录，不改写失败的旧记录。
	RetryCount int `gorm:"not null;default:0" json:"retryCount"`
	// CreatedBy 记录发起操作的主体，用于审计。
	CreatedBy string    `gorm:"type:varchar(100)" json:"createdBy"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ExtractionRun) TableName() string {
	return "extraction_runs"
}
