// Package apperr 定义了核心业务的错误分类。
// 调用方通过 errors.As 判断错误类别，处理层据此映射 HTTP 状态码；
// 除 TransientExecutionError 外的所有错误都不会被自动重试。
package apperr

import "fmt"

// ValidationError 表示输入不满足配置或运行操作的约束（如唯一性、长度、取值范围）。
type ValidationError struct {
	// Constraint 命名被违反的约束，例如 "namespace.name.unique"。
	Constraint string
	Detail     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("校验失败 [%s]: %s", e.Constraint, e.Detail)
}

// NewValidation 构造一个 ValidationError。
func NewValidation(constraint, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Constraint: constraint, Detail: fmt.Sprintf(format, args...)}
}

// ReferentialError 表示引用的父实体不存在或已停用。
type ReferentialError struct {
	Entity string
	ID     string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("引用失效: %s '%s' 不存在或已停用", e.Entity, e.ID)
}

// NewReferential 构造一个 ReferentialError。
func NewReferential(entity, id string) *ReferentialError {
	return &ReferentialError{Entity: entity, ID: id}
}

// PreconditionError 表示实体处于不允许该操作的状态（如对非 completed 运行执行评估）。
type PreconditionError struct {
	Op     string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("前置条件不满足 [%s]: %s", e.Op, e.Detail)
}

// NewPrecondition 构造一个 PreconditionError。
func NewPrecondition(op, format string, args ...interface{}) *PreconditionError {
	return &PreconditionError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// TransientExecutionError 表示推理或存储侧的可重试故障；
// 达到重试上限后由调用方升级为 PermanentExecutionError。
type TransientExecutionError struct {
	Cause error
}

func (e *TransientExecutionError) Error() string {
	return fmt.Sprintf("瞬时执行失败: %v", e.Cause)
}

func (e *TransientExecutionError) Unwrap() error { return e.Cause }

// NewTransient 构造一个 TransientExecutionError。
func NewTransient(cause error) *TransientExecutionError {
	return &TransientExecutionError{Cause: cause}
}

// PermanentExecutionError 表示不可重试的执行失败，需要人工介入。
type PermanentExecutionError struct {
	Cause error
}

func (e *PermanentExecutionError) Error() string {
	return fmt.Sprintf("永久执行失败: %v", e.Cause)
}

func (e *PermanentExecutionError) Unwrap() error { return e.Cause }

// NewPermanent 构造一个 PermanentExecutionError。
func NewPermanent(cause error) *PermanentExecutionError {
	return &PermanentExecutionError{Cause: cause}
}

// DataIntegrityError 表示 ground truth 缺失或损坏；评估在此情况下不落任何部分结果。
type DataIntegrityError struct {
	URI    string
	Detail string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("数据完整性错误 (%s): %s", e.URI, e.Detail)
}

// NewDataIntegrity 构造一个 DataIntegrityError。
func NewDataIntegrity(uri, format string, args ...interface{}) *DataIntegrityError {
	return &DataIntegrityError{URI: uri, Detail: fmt.Sprintf(format, args...)}
}
