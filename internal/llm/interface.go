// internal/llm/interface.go
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
)

// 提供者标识
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
	ProviderOllama = "ollama"
)

// 请求参数标准化
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	// JSONMode 请求厂商以纯JSON输出（支持时）
	JSONMode bool `json:"json_mode,omitempty"`
}

// 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	// UsageReported 为 false 时调用方需自行估算用量
	UsageReported bool `json:"usage_reported"`
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置（api_key, base_url, default_model, timeout）
	Initialize(config map[string]string) error

	// 获取提供者标识
	GetName() string

	// 未指定模型时使用的模型
	GetDefaultModel() string

	// 是否具备调用所需的凭据/地址
	IsConfigured() bool

	// 单次非流式文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderFactory 提供者工厂
type ProviderFactory func() Provider

var (
	factories   = make(map[string]ProviderFactory)
	factoriesMu sync.RWMutex
)

// Register 注册提供者工厂，由各提供者包的 init 调用
func Register(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry 启动时构建的提供者实例表，请求期间只读
type Registry struct {
	providers map[string]Provider
}

// NewRegistry 使用显式配置实例化所有已注册的提供者
func NewRegistry(configs map[string]map[string]string) (*Registry, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	r := &Registry{providers: make(map[string]Provider, len(factories))}
	for name, factory := range factories {
		provider := factory()
		if err := provider.Initialize(configs[name]); err != nil {
			return nil, fmt.Errorf("初始化提供者 %s 失败: %w", name, err)
		}
		r.providers[name] = provider
	}
	return r, nil
}

// NewStaticRegistry 直接由实例构建，主要用于测试
func NewStaticRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.GetName()] = p
	}
	return r
}

// Get 获取指定名称的提供者
func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown provider: %s", name), nil)
	}
	return provider, nil
}

// Names 返回已实例化的提供者名称
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewHTTPClient 按配置中的 timeout 创建客户端
func NewHTTPClient(config map[string]string) *http.Client {
	client := &http.Client{}
	if raw := config["timeout"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			client.Timeout = d
		}
	}
	return client
}

// ConfigValue 读取配置项，缺失时返回默认值
func ConfigValue(config map[string]string, key, defaultValue string) string {
	if v, ok := config[key]; ok && v != "" {
		return v
	}
	return defaultValue
}

// ExcerptBody 截断错误响应体，避免日志过长
func ExcerptBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
