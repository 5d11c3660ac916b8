// Package model 定义了与数据库表对应的 Go 结构体。
package model

// EvaluationReview 是写入 Elasticsearch 复核索引的评估文档。
// 它把一次评估的不匹配与多余字段拍平，供复核人员按字段路径或关键字检索。
type EvaluationReview struct {
	EvaluationID    string   `json:"evaluation_id"`
	ExtractionRunID string   `json:"extraction_run_id"`
	TemplateID      uint     `json:"template_id"`
	PromptID        uint     `json:"prompt_id"`
	EvaluatorType   string   `json:"evaluator_type"`
	Accuracy        float64  `json:"accuracy"`
	MismatchPaths   []string `json:"mismatch_paths"`
	MissingPaths    []string `json:"missing_paths"`
	ExtraPaths      []string `json:"extra_paths"`
	// MismatchSummary 是 "path: expected != actual" 的逐行拼接，用于全文检索。
	MismatchSummary string `json:"mismatch_summary"`
	CreatedAt       string `json:"created_at"`
}
