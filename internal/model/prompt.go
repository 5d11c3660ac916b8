// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 提示词类型的封闭集合。
const (
	PromptTypeExtraction     = "extraction"
	PromptTypeValidation     = "validation"
	PromptTypeEnhancement    = "enhancement"
	PromptTypeClassification = "classification"
)

// ValidPromptTypes 列出所有允许的提示词类型取值。
var ValidPromptTypes = []string{
	PromptTypeExtraction, PromptTypeValidation,
	PromptTypeEnhancement, PromptTypeClassification,
}

// PromptModelConfig 是提示词级别的类型化模型配置文档。
type PromptModelConfig struct {
	Model       string            `json:"model,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Prompt 对应于数据库中的 'prompts' 表。
// 同名提示词的多个版本并存，(template_id, name, version) 唯一；
// 新运行默认使用最大活跃版本，除非运行显式固定某个版本。
type Prompt struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TemplateID uint   `gorm:"not null;uniqueIndex:uk_prompt_tpl_name_ver" json:"templateId"`
	Name       string `gorm:"type:varchar(100);not null;uniqueIndex:uk_prompt_tpl_name_ver" json:"name"`
	// Content 是提示词正文，至少 10 个字符。
	Content string `gorm:"type:text;not null" json:"content"`
	// Version 单调递增，大于 0。
	Version int `gorm:"not null;uniqueIndex:uk_prompt_tpl_name_ver" json:"version"`
	// Type 取值限于 ValidPromptTypes。
	Type        string            `gorm:"type:varchar(20);not null" json:"type"`
	IsActive    bool              `gorm:"not null;default:true" json:"isActive"`
	ModelConfig PromptModelConfig `gorm:"type:json;serializer:json" json:"modelConfig"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Prompt) TableName() string {
	return "prompts"
}
