// internal/services/analysis_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Corphon/PodcastDigest/internal/config"
	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/utils"
)

// ProviderAuto 触发自动回退链
const ProviderAuto = "auto"

// ModelLister 能列出本地模型的提供者（Ollama）
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
}

// AvailabilityChecker 本地服务的可达性探测
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context) bool
}

// AnalysisService 负责选择提供者并执行回退
type AnalysisService struct {
	cfg      *config.Config
	registry *llm.Registry
	adapter  *ProviderAdapter
	logger   *utils.Logger
	metrics  *utils.PipelineMetrics
}

// NewAnalysisService 创建分析服务，配置在启动时注入
func NewAnalysisService(cfg *config.Config, registry *llm.Registry, logger *utils.Logger, metrics *utils.PipelineMetrics) *AnalysisService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewPipelineMetrics(nil, logger)
	}
	return &AnalysisService{
		cfg:      cfg,
		registry: registry,
		adapter:  NewProviderAdapter(),
		logger:   logger,
		metrics:  metrics,
	}
}

// AnalyzeWithProvider 按选择执行分析：auto 走回退链，其余只尝试一次
func (s *AnalysisService) AnalyzeWithProvider(ctx context.Context, choice string, in AnalysisInput) (*models.ProviderInvocationResult, error) {
	switch choice {
	case "", ProviderAuto:
		return s.analyzeWithFallback(ctx, in)
	case llm.ProviderGroq, llm.ProviderGemini, llm.ProviderClaude, llm.ProviderOllama:
		return s.attempt(ctx, choice, in)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown provider: %s", choice), nil)
	}
}

// FallbackChain 自动模式下的尝试顺序，Claude 始终为最后一环
func (s *AnalysisService) FallbackChain() []string {
	chain := make([]string, 0, 3)
	if s.cfg.UseGroq && s.cfg.GroqAPIKey != "" {
		chain = append(chain, llm.ProviderGroq)
	}
	if s.cfg.GeminiAPIKey != "" {
		chain = append(chain, llm.ProviderGemini)
	}
	return append(chain, llm.ProviderClaude)
}

func (s *AnalysisService) analyzeWithFallback(ctx context.Context, in AnalysisInput) (*models.ProviderInvocationResult, error) {
	chain := s.FallbackChain()
	for i, name := range chain {
		result, err := s.attempt(ctx, name, in)
		if err == nil {
			return result, nil
		}
		if i == len(chain)-1 {
			return nil, err
		}

		s.logger.Warn("Provider failed, falling back", map[string]interface{}{
			"provider": name,
			"next":     chain[i+1],
			"kind":     apperrors.TypeOf(err),
			"error":    err.Error(),
		})
		s.metrics.RecordFallback(name)
	}
	// 不可达：链至少包含 Claude
	return nil, apperrors.NewProviderError("no provider attempted", nil)
}

// attempt 单次调用，带独立超时
func (s *AnalysisService) attempt(ctx context.Context, name string, in AnalysisInput) (*models.ProviderInvocationResult, error) {
	provider, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	timeout := s.cfg.LLMTimeout
	if timeout <= 0 {
		timeout = config.DefaultLLMTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("Analyzing transcript", map[string]interface{}{
		"provider": name,
		"model":    in.Model,
	})

	start := time.Now()
	result, err := s.adapter.Invoke(attemptCtx, provider, in)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !apperrors.IsTimeoutError(err) {
		err = apperrors.NewTimeoutError(fmt.Sprintf("%s request timed out after %s", name, timeout), err).WithProvider(name)
	}

	tokens := 0
	if result != nil {
		tokens = result.Usage.TotalTokens
	}
	s.metrics.RecordLLMAttempt(name, tokens, time.Since(start), err)

	if err != nil {
		return nil, err
	}

	s.logger.Info("Analysis completed", map[string]interface{}{
		"provider":        result.Provider,
		"model":           result.Model,
		"processing_ms":   result.ProcessingTimeMs,
		"total_tokens":    result.Usage.TotalTokens,
		"highlight_count": len(result.Analysis.Highlights),
	})
	return result, nil
}

// ProviderStatus 汇总各提供者的可用状态
func (s *AnalysisService) ProviderStatus(ctx context.Context) map[string]models.ProviderStatus {
	groqAvailable := s.cfg.UseGroq && s.cfg.GroqAPIKey != ""
	geminiAvailable := s.cfg.GeminiAPIKey != ""
	claudeAvailable := s.cfg.AnthropicAPIKey != ""

	ollama := models.ProviderStatus{
		Icon:        "🦙",
		Name:        "Ollama",
		Description: "Run models locally, private and offline",
		Cost:        "Free (local)",
	}
	if provider, err := s.registry.Get(llm.ProviderOllama); err == nil {
		if checker, ok := provider.(AvailabilityChecker); ok && checker.CheckAvailability(ctx) {
			ollama.Available = true
			if lister, ok := provider.(ModelLister); ok {
				if list, err := lister.ListModels(ctx); err == nil {
					ollama.Models = list
				} else {
					s.logger.Debug("Ollama model list failed", map[string]interface{}{"error": err.Error()})
				}
			}
		} else {
			s.logger.Debug("Ollama not reachable", nil)
		}
	}

	return map[string]models.ProviderStatus{
		ProviderAuto: {
			Icon:        "🔄",
			Name:        "Auto",
			Description: "Tries Groq, then Gemini, then Claude",
			Cost:        "Varies",
			Available:   groqAvailable || geminiAvailable || claudeAvailable,
		},
		llm.ProviderGroq: {
			Icon:        "⚡",
			Name:        "Groq",
			Description: "Llama 3.3 70B on Groq, very fast inference",
			Cost:        "$0.59 / $0.79 per 1M tokens",
			Available:   groqAvailable,
		},
		llm.ProviderGemini: {
			Icon:        "✨",
			Name:        "Gemini",
			Description: "Google Gemini 2.0 Flash with a generous free tier",
			Cost:        "Free under 128K tokens",
			Available:   geminiAvailable,
		},
		llm.ProviderOllama: ollama,
		llm.ProviderClaude: {
			Icon:        "🧠",
			Name:        "Claude",
			Description: "Claude 3.5 Sonnet, highest quality analysis",
			Cost:        "$3 / $15 per 1M tokens",
			Available:   claudeAvailable,
		},
	}
}
