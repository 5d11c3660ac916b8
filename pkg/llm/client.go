// Package llm 提供了抽取推理能力的客户端。
// 推理对核心是不透明的：输入 (文档文本, 提示词, 模型配置)，
// 输出 JSON 负载加置信度，错误被区分为可重试与不可重试两类。
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"extractlab-go/internal/config"
	"extractlab-go/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ExtractionResult 是一次推理调用的产物。
type ExtractionResult struct {
	// OutputJSON 是模型返回的结构化抽取结果。
	OutputJSON json.RawMessage
	// Confidence 位于 [0,1]。
	Confidence       float64
	ModelUsed        string
	ProcessingTimeMs int64
}

// Client defines the interface for an extraction inference client.
type Client interface {
	// Extract 将文档文本与提示词送入模型，返回结构化输出。
	Extract(ctx context.Context, documentText, promptText string, modelCfg model.PromptModelConfig) (*ExtractionResult, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient 根据配置创建推理客户端。
func NewClient(cfg config.LLMConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	return &openAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// extractionEnvelope 约定模型以 {"fields": {...}, "confidence": 0.92} 的形式作答。
type extractionEnvelope struct {
	Fields     json.RawMessage `json:"fields"`
	Confidence float64         `json:"confidence"`
}

const systemPrompt = `你是一个文档结构化抽取引擎。根据用户提供的提示词从文档文本中抽取字段，
只输出一个 JSON 对象：{"fields": <按提示词要求抽取的字段对象>, "confidence": <0 到 1 的总体置信度>}。
不要输出任何解释性文字。`

// Extract 调用 chat completions 接口执行一次抽取。
func (c *openAIClient) Extract(ctx context.Context, documentText, promptText string, modelCfg model.PromptModelConfig) (*ExtractionResult, error) {
	modelName := c.cfg.Model
	if modelCfg.Model != "" {
		modelName = modelCfg.Model
	}
	temperature := float32(c.cfg.Temperature)
	if modelCfg.Temperature != 0 {
		temperature = float32(modelCfg.Temperature)
	}
	maxTokens := c.cfg.MaxTokens
	if modelCfg.MaxTokens != 0 {
		maxTokens = modelCfg.MaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: promptText + "\n\n--- 文档内容 ---\n" + documentText},
		},
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &PermanentError{Cause: errors.New("推理响应不包含任何候选")}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var envelope extractionEnvelope
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, &PermanentError{Cause: fmt.Errorf("推理输出不是合法 JSON: %w", err)}
	}
	if envelope.Fields == nil {
		// 模型未按约定包一层 envelope 时，整个响应体视为字段对象
		envelope.Fields = json.RawMessage(content)
	}
	if envelope.Confidence < 0 {
		envelope.Confidence = 0
	}
	if envelope.Confidence > 1 {
		envelope.Confidence = 1
	}

	return &ExtractionResult{
		OutputJSON:       envelope.Fields,
		Confidence:       envelope.Confidence,
		ModelUsed:        resp.Model,
		ProcessingTimeMs: elapsed,
	}, nil
}

// TransientError 表示限流、超时或上游 5xx，可安全重试。
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("推理瞬时失败: %v", e.Cause) }
func (e *TransientError) Unwrap() error { return e.Cause }

// PermanentError 表示鉴权失败、请求非法或输出损坏，重试无意义。
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("推理永久失败: %v", e.Cause) }
func (e *PermanentError) Unwrap() error { return e.Cause }

// classifyError 按上游返回区分瞬时与永久失败。
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return &TransientError{Cause: err}
		default:
			return &PermanentError{Cause: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Cause: err}
	}
	// 网络层错误（连接重置等）按瞬时处理
	return &TransientError{Cause: err}
}
