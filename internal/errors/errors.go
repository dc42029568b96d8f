// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeConfigMissing ErrorType = "config_missing"
	ErrorTypeServiceDown   ErrorType = "service_down"
	ErrorTypeBadResponse   ErrorType = "bad_response"
	ErrorTypeValidation    ErrorType = "validation_error"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeProvider      ErrorType = "provider_error"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// AppError 应用程序错误结构
type AppError struct {
	Type     ErrorType
	Message  string
	Err      error
	Code     string // 用户友好的错误代码
	Provider string // 出错的LLM/转写服务，可为空
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

// WithProvider 标记出错的服务名
func (e *AppError) WithProvider(provider string) *AppError {
	e.Provider = provider
	return e
}

// NewConfigMissingError 凭据缺失（"not configured"）
func NewConfigMissingError(message string) *AppError {
	return NewAppError(ErrorTypeConfigMissing, message, nil)
}

// NewServiceDownError 本地服务不可达（"not running"）
func NewServiceDownError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeServiceDown, message, originalError)
}

// NewBadResponseError 响应不是合法JSON或缺少必需字段
func NewBadResponseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeBadResponse, message, originalError)
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewProviderError 上游服务返回错误
func NewProviderError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProvider, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// TypeOf 返回错误链中第一个 AppError 的类型
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeUnknown
}

// IsConfigMissingError 检查是否为凭据缺失错误
func IsConfigMissingError(err error) bool {
	return TypeOf(err) == ErrorTypeConfigMissing
}

// IsServiceDownError 检查是否为服务不可达错误
func IsServiceDownError(err error) bool {
	return TypeOf(err) == ErrorTypeServiceDown
}

// IsBadResponseError 检查是否为响应格式错误
func IsBadResponseError(err error) bool {
	return TypeOf(err) == ErrorTypeBadResponse
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsUnavailable 凭据缺失或服务未运行，流水线据此降级为演示数据
func IsUnavailable(err error) bool {
	t := TypeOf(err)
	return t == ErrorTypeConfigMissing || t == ErrorTypeServiceDown
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeConfigMissing:
		return "NOT_CONFIGURED"
	case ErrorTypeServiceDown:
		return "SERVICE_UNAVAILABLE"
	case ErrorTypeBadResponse:
		return "BAD_RESPONSE"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeProvider:
		return "PROVIDER_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，保留原类型
		return &AppError{
			Type:     appError.Type,
			Message:  fmt.Sprintf("%s: %s", message, appError.Message),
			Err:      appError,
			Code:     appError.Code,
			Provider: appError.Provider,
		}
	}

	return NewAppError(errType, message, err)
}
