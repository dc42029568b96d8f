// internal/llm/transport.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
)

// ClassifyTransportError 将网络层错误映射为错误类型。
// localService 为 true 时，连接被拒绝视为服务未运行
func ClassifyTransportError(provider string, err error, localService bool) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(fmt.Sprintf("%s request timed out", provider), err).WithProvider(provider)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError(fmt.Sprintf("%s request timed out", provider), err).WithProvider(provider)
	}

	if localService && isConnectionRefused(err) {
		return apperrors.NewServiceDownError(fmt.Sprintf("%s is not running", provider), err).WithProvider(provider)
	}

	return apperrors.NewProviderError(fmt.Sprintf("%s request failed", provider), err).WithProvider(provider)
}

// StatusError 非2xx响应
func StatusError(provider string, status int, detail string) error {
	return apperrors.NewProviderError(
		fmt.Sprintf("%s API returned %d: %s", provider, status, detail), nil,
	).WithProvider(provider)
}

// NotConfiguredError 缺少API密钥
func NotConfiguredError(provider, vendor string) error {
	return apperrors.NewConfigMissingError(
		fmt.Sprintf("%s API key is not configured", vendor),
	).WithProvider(provider)
}

func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}
