// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeTimeout    ErrorType = "timeout"

	// 档案生成相关错误类型
	ErrorTypeEmptyHistory ErrorType = "empty_history"
	ErrorTypeSchema       ErrorType = "schema_error"
	ErrorTypeProvider     ErrorType = "provider_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewEmptyHistoryError 创建空对话记录错误（尚未与NPC对话就请求生成档案）
func NewEmptyHistoryError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeEmptyHistory, message, originalError)
}

// NewSchemaError 创建结构化输出解析错误（LLM回复不符合档案结构）
func NewSchemaError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSchema, message, originalError)
}

// NewProviderError 创建LLM提供商调用错误（网络、鉴权、限流、流中断）
func NewProviderError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProvider, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsEmptyHistoryError 检查是否为空对话记录错误
func IsEmptyHistoryError(err error) bool {
	return isType(err, ErrorTypeEmptyHistory)
}

// IsSchemaError 检查是否为结构化输出解析错误
func IsSchemaError(err error) bool {
	return isType(err, ErrorTypeSchema)
}

// IsProviderError 检查是否为LLM提供商调用错误
func IsProviderError(err error) bool {
	return isType(err, ErrorTypeProvider)
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeEmptyHistory:
		return "EMPTY_HISTORY"
	case ErrorTypeSchema:
		return "SCHEMA_ERROR"
	case ErrorTypeProvider:
		return "PROVIDER_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误；已是 AppError 时保留原类型
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
