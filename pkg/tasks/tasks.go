// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ExtractionTask 是摄取源（邮件/SFTP/HTTP/手动上传）投递到 Kafka 的抽取任务。
// 核心不关心文档是如何被发现的，只消费 (文档 URI, 模板) 二元组。
type ExtractionTask struct {
	// RunID 非空时表示运行已由 API 预先创建，消费者只负责推进它。
	RunID       string `json:"run_id,omitempty"`
	TemplateID  uint   `json:"template_id"`
	// PromptID 为 0 时使用模板下最大活跃版本的抽取提示词。
	PromptID    uint   `json:"prompt_id,omitempty"`
	DocumentURI string `json:"document_uri"`
	// Principal 记录投递来源，用于审计日志。
	Principal string `json:"principal,omitempty"`
}
