// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"encoding/json"
	"time"
)

// Template 对应于数据库中的 'templates' 表。
// 模板是不可变的版本化值，(use_case_id, name, version) 唯一；
// “当前版本”由最大活跃版本号派生，不存在单独的可变指针。
type Template struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UseCaseID uint   `gorm:"not null;uniqueIndex:uk_template_uc_name_ver" json:"useCaseId"`
	Name      string `gorm:"type:varchar(100);not null;uniqueIndex:uk_template_uc_name_ver" json:"name"`
	// SampleDocumentURI 指向样例文档（文档类资源，如 pdf/png/docx）。
	SampleDocumentURI string `gorm:"type:varchar(512);not null" json:"sampleDocumentUri"`
	// GroundTruthURI 指向 JSON 形式的标准答案文档。
	GroundTruthURI string `gorm:"type:varchar(512);not null" json:"groundTruthUri"`
	// SchemaDefinition 是描述期望抽取字段的 JSON Schema 文档。
	SchemaDefinition json.RawMessage `gorm:"type:json" json:"schemaDefinition"`
	// Version 单调递增，大于 0。
	Version   int       `gorm:"not null;uniqueIndex:uk_template_uc_name_ver" json:"version"`
	IsActive  bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Template) TableName() string {
	return "templates"
}
