// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 评估者类型的封闭集合。
const (
	EvaluatorTypeAutomated = "automated"
	EvaluatorTypeManual    = "manual"
	EvaluatorTypeHybrid    = "hybrid"
)

// ValidEvaluatorTypes 列出所有允许的评估者类型取值。
var ValidEvaluatorTypes = []string{
	EvaluatorTypeAutomated, EvaluatorTypeManual, EvaluatorTypeHybrid,
}

// 字段级分类结果。extra 不计入召回率，但会被单独记录以供复核。
const (
	FieldResultMatch    = "match"
	FieldResultMismatch = "mismatch"
	FieldResultMissing  = "missing"
	FieldResultExtra    = "extra"
)

// FieldMismatch 记录一个不匹配字段的期望值与实际值。
type FieldMismatch struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// EvaluationRun 对应于数据库中的 'evaluation_runs' 表。
// 同一个抽取运行可以有多条评估记录（如自动评估后再人工复核），互不排斥。
type EvaluationRun struct {
	// ID 是创建时生成的 UUID。
	ID              string `gorm:"type:varchar(36);primaryKey" json:"id"`
	ExtractionRunID string `gorm:"type:varchar(36);not null;index" json:"extractionRunId"`
	// EvaluatorType 取值限于 ValidEvaluatorTypes。
	EvaluatorType string `gorm:"type:varchar(20);not null" json:"evaluatorType"`
	// 四项聚合指标均位于 [0,1]，缺失时为空。
	Accuracy  *float64 `json:"accuracy"`
	Precision *float64 `json:"precision"`
	Recall    *float64 `json:"recall"`
	F1Score   *float64 `json:"f1Score"`
	// FieldLevelMetrics 按字段路径记录 match/mismatch/missing/extra 分类。
	FieldLevelMetrics map[string]string `gorm:"type:json;serializer:json" json:"fieldLevelMetrics"`
	// MismatchedFields 是有序的不匹配字段列表。
	MismatchedFields []FieldMismatch `gorm:"type:json;serializer:json" json:"mismatchedFields"`
	// 不变量：CorrectlyExtractedFields ≤ TotalFieldsEvaluated。
	TotalFieldsEvaluated     int       `gorm:"not null;default:0" json:"totalFieldsEvaluated"`
	CorrectlyExtractedFields int       `gorm:"not null;default:0" json:"correctlyExtractedFields"`
	CreatedBy                string    `gorm:"type:varchar(100)" json:"createdBy"`
	CreatedAt                time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (EvaluationRun) TableName() string {
	return "evaluation_runs"
}
