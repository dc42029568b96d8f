// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准API错误格式
type APIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// sensitiveMarkers 出现即整体替换错误信息
var sensitiveMarkers = []string{"api_key", "apikey", "secret", "token", "password", "key="}

// sanitizeErrorMessage removes sensitive information from error messages
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}

	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	rh.writeError(c, statusCode, apiError)
}

func (rh *ResponseHelper) writeError(c *gin.Context, statusCode int, apiError *APIError) {
	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	message := resource + "不存在"
	code := ErrorNotFound
	if resource != "" {
		code = rh.getResourceNotFoundCode(resource)
	}
	rh.Error(c, http.StatusNotFound, code, message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// AppError 按错误类型选择状态码
func (rh *ResponseHelper) AppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		rh.InternalError(c, "处理失败", err.Error())
		return
	}

	rh.writeError(c, StatusForError(appErr.Type), &APIError{
		Code:     CodeForError(appErr.Type),
		Message:  sanitizeErrorMessage(appErr.Message),
		Provider: appErr.Provider,
	})
}

// StatusForError 错误类型对应的HTTP状态码
func StatusForError(errType apperrors.ErrorType) int {
	switch errType {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConfigMissing, apperrors.ErrorTypeServiceDown:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrorTypeBadResponse, apperrors.ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeForError 错误类型对应的API错误代码
func CodeForError(errType apperrors.ErrorType) string {
	switch errType {
	case apperrors.ErrorTypeValidation:
		return ErrorBadRequest
	case apperrors.ErrorTypeNotFound:
		return ErrorNotFound
	case apperrors.ErrorTypeConfigMissing:
		return ErrorProviderNotConfigured
	case apperrors.ErrorTypeServiceDown:
		return ErrorLLMServiceUnavailable
	case apperrors.ErrorTypeTimeout:
		return ErrorUpstreamTimeout
	case apperrors.ErrorTypeBadResponse:
		return ErrorMalformedLLMOutput
	case apperrors.ErrorTypeProvider:
		return ErrorProviderFailed
	default:
		return ErrorInternalError
	}
}

// FileResponse 文件下载响应
func (rh *ResponseHelper) FileResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.String(http.StatusOK, content)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if requestID := c.GetString(requestIDKey); requestID != "" {
		return requestID
	}
	return ""
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "任务", "task":
		return ErrorTaskNotFound
	case "节目", "episode":
		return ErrorEpisodeNotFound
	default:
		return "RESOURCE_NOT_FOUND"
	}
}
