// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 摄取类型的封闭集合，描述文档的种类而非来源机制。
const (
	IngestionTypePDF      = "pdf"
	IngestionTypeImage    = "image"
	IngestionTypeDocument = "document"
	IngestionTypeForm     = "form"
	IngestionTypeInvoice  = "invoice"
	IngestionTypeContract = "contract"
	IngestionTypeOther    = "other"
)

// ValidIngestionTypes 列出所有允许的摄取类型取值。
var ValidIngestionTypes = []string{
	IngestionTypePDF, IngestionTypeImage, IngestionTypeDocument,
	IngestionTypeForm, IngestionTypeInvoice, IngestionTypeContract, IngestionTypeOther,
}

// IngestionConfig 是用例级别的类型化摄取配置文档。
type IngestionConfig struct {
	// AutoCreateRuns 为 true 时，摄取源投递的文档会自动创建抽取运行。
	AutoCreateRuns bool `json:"autoCreateRuns,omitempty"`
	// DefaultTemplateName 指定摄取投递未带模板时使用的模板名。
	DefaultTemplateName string            `json:"defaultTemplateName,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// UseCase 对应于数据库中的 'use_cases' 表。
// 每个用例归属于唯一的命名空间，(namespace_id, name) 唯一。
type UseCase struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	NamespaceID uint   `gorm:"not null;uniqueIndex:uk_usecase_ns_name" json:"namespaceId"`
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex:uk_usecase_ns_name" json:"name"`
	OwnerID     uint   `gorm:"not null" json:"ownerId"`
	// IngestionType 取值限于 ValidIngestionTypes。
	IngestionType   string          `gorm:"type:varchar(20);not null" json:"ingestionType"`
	IngestionConfig IngestionConfig `gorm:"type:json;serializer:json" json:"ingestionConfig"`
	IsActive        bool            `gorm:"not null;default:true" json:"isActive"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UseCase) TableName() string {
	return "use_cases"
}
