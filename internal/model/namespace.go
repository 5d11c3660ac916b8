// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// NamespaceSettings 是命名空间级别的类型化配置文档。
// 已识别的键使用显式字段，Extra 作为有界的前向兼容逃生口，仅在存储边界序列化。
type NamespaceSettings struct {
	DefaultLanguage string            `json:"defaultLanguage,omitempty"`
	RetentionDays   int               `json:"retentionDays,omitempty"`
	NotifyEmail     string            `json:"notifyEmail,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Namespace 对应于数据库中的 'namespaces' 表。
// 它是租户级别的顶层容器，所有下级实体都归属于某个命名空间。
type Namespace struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// Name 全局唯一，至少 3 个字符。
	Name     string `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	OwnerID  uint   `gorm:"not null" json:"ownerId"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`
	// Settings 以 JSON 形式落库。
	Settings  NamespaceSettings `gorm:"type:json;serializer:json" json:"settings"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Namespace) TableName() string {
	return "namespaces"
}
