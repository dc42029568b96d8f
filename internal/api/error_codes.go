// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 任务与结果
	ErrorTaskNotFound    = "TASK_NOT_FOUND"
	ErrorEpisodeNotFound = "EPISODE_NOT_FOUND"

	// LLM服务相关错误
	ErrorProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorMalformedLLMOutput    = "MALFORMED_LLM_OUTPUT"
	ErrorProviderFailed        = "PROVIDER_FAILED"
	ErrorUpstreamTimeout       = "UPSTREAM_TIMEOUT"
)
