// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// 存储后端
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreNone     = "none"
)

// 默认时限
const (
	DefaultLLMTimeout        = 120 * time.Second
	DefaultTranscriptTimeout = 5 * time.Minute
)

// Config 存储应用配置
// 进程启动时读取一次，之后以只读方式注入各服务
type Config struct {
	// 基础配置
	Port      string `validate:"required,numeric"`
	DataDir   string `validate:"required"`
	LogFile   string
	LogLevel  string `validate:"oneof=debug info warn warning error"`
	DebugMode bool

	// LLM 凭据与开关
	GroqAPIKey      string
	UseGroq         bool
	GeminiAPIKey    string
	AnthropicAPIKey string
	OllamaURL       string        `validate:"required,url"`
	LLMTimeout      time.Duration `validate:"gt=0"`

	// 转写服务
	AssemblyAIAPIKey          string
	TranscriptPollInterval    time.Duration `validate:"gt=0"`
	TranscriptPollMaxInterval time.Duration `validate:"gtefield=TranscriptPollInterval"`
	TranscriptTimeout         time.Duration `validate:"gt=0"`

	// 结果存储
	StoreBackend string `validate:"oneof=file postgres none"`
	DatabaseURL  string `validate:"required_if=StoreBackend postgres"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", "3001"),
		DataDir:   getEnv("DATA_DIR", "data"),
		LogFile:   getEnv("LOG_FILE", ""),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DebugMode: getEnvBool("DEBUG_MODE", false),

		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		UseGroq:         getEnvBool("USE_GROQ", true),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		LLMTimeout:      getEnvDuration("LLM_TIMEOUT", DefaultLLMTimeout),

		AssemblyAIAPIKey:          getEnv("ASSEMBLYAI_API_KEY", ""),
		TranscriptPollInterval:    getEnvDuration("TRANSCRIPT_POLL_INTERVAL", time.Second),
		TranscriptPollMaxInterval: getEnvDuration("TRANSCRIPT_POLL_MAX_INTERVAL", 5*time.Second),
		TranscriptTimeout:         getEnvDuration("TRANSCRIPT_TIMEOUT", DefaultTranscriptTimeout),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreFile)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 只记录警告，不返回错误：缺少凭据时流水线会降级为演示数据
	if !config.HasAnyLLMCredential() {
		log.Println("警告: 未配置任何LLM API密钥，分析将使用演示数据")
	}
	if config.AssemblyAIAPIKey == "" {
		log.Println("警告: 未配置ASSEMBLYAI_API_KEY，转写将使用演示文本")
	}

	return config, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	return nil
}

// HasAnyLLMCredential 是否配置了至少一个云端LLM密钥
func (c *Config) HasAnyLLMCredential() bool {
	return c.GroqAPIKey != "" || c.GeminiAPIKey != "" || c.AnthropicAPIKey != ""
}

// LLMProviderConfigs 生成每个提供者的初始化参数
func (c *Config) LLMProviderConfigs() map[string]map[string]string {
	timeout := c.LLMTimeout.String()
	return map[string]map[string]string{
		"groq": {
			"api_key": c.GroqAPIKey,
			"timeout": timeout,
		},
		"gemini": {
			"api_key": c.GeminiAPIKey,
			"timeout": timeout,
		},
		"claude": {
			"api_key": c.AnthropicAPIKey,
			"timeout": timeout,
		},
		"ollama": {
			"base_url": c.OllamaURL,
			"timeout":  timeout,
		},
	}
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration 获取时长类型环境变量，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	log.Printf("警告: %s 的值 %q 无法解析，使用默认值 %s", key, value, defaultValue)
	return defaultValue
}
