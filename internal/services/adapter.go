// internal/services/adapter.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/models"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

// AnalysisInput 一次分析所需的转录数据
type AnalysisInput struct {
	Transcript string
	Sentences  []models.Sentence
	Utterances []models.Utterance
	// Model 为空时使用提供者默认模型
	Model string
}

// ProviderAdapter 把任意 llm.Provider 包装成统一的分析调用
type ProviderAdapter struct {
	MaxTokens   int
	Temperature float32
}

// NewProviderAdapter 创建默认参数的适配器
func NewProviderAdapter() *ProviderAdapter {
	return &ProviderAdapter{MaxTokens: defaultMaxTokens, Temperature: defaultTemperature}
}

// Invoke 发起一次请求，校验并对齐结果
func (a *ProviderAdapter) Invoke(ctx context.Context, provider llm.Provider, in AnalysisInput) (*models.ProviderInvocationResult, error) {
	name := provider.GetName()
	if !provider.IsConfigured() {
		return nil, apperrors.NewConfigMissingError(fmt.Sprintf("%s is not configured", name)).WithProvider(name)
	}

	model := in.Model
	if model == "" {
		model = provider.GetDefaultModel()
	}

	req := llm.CompletionRequest{
		Prompt:      BuildAnalysisPrompt(in.Transcript),
		Model:       model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		JSONMode:    true,
	}

	// 只计网络调用耗时
	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(resp.Text)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok {
			return nil, appErr.WithProvider(name)
		}
		return nil, err
	}

	analysis.Highlights = AlignHighlights(analysis.Highlights, in.Sentences, in.Utterances)
	if analysis.TLDR != nil {
		analysis.TLDR.KeyInsights = AlignKeyInsights(analysis.TLDR.KeyInsights, in.Sentences)
	}

	if resp.ModelName != "" {
		model = resp.ModelName
	}

	return &models.ProviderInvocationResult{
		Analysis:         analysis,
		Provider:         name,
		Model:            model,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Usage:            usageFor(resp, in.Transcript),
	}, nil
}

// usageFor 厂商未报告用量时按 4 字符/token 估算
func usageFor(resp *llm.CompletionResponse, transcript string) models.Usage {
	if resp.UsageReported {
		total := resp.TokensUsed
		if total == 0 {
			total = resp.PromptTokens + resp.OutputTokens
		}
		return models.Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      total,
		}
	}

	prompt := estimateTokens(transcript)
	completion := estimateTokens(resp.Text)
	return models.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

func estimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// analysisWire 响应的解码形态。tldr/categories 为可选段，解码失败时丢弃
type analysisWire struct {
	Title         string                `json:"title"`
	Summary       string                `json:"summary"`
	TLDR          json.RawMessage       `json:"tldr"`
	Categories    json.RawMessage       `json:"categories"`
	Highlights    []highlightWire       `json:"highlights"`
	KeyTakeaways  []string              `json:"keyTakeaways"`
	SimilarTopics []models.SimilarTopic `json:"similarTopics"`
	FollowUps     []string              `json:"followUps"`
	Tags          []string              `json:"tags"`
}

// 模型给出的时间与发言人会被覆盖，不参与解码
type highlightWire struct {
	Text    string `json:"text"`
	Snippet string `json:"snippet"`
}

// UnmarshalJSON 同时接受对象与纯字符串两种写法
func (h *highlightWire) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		h.Text = text
		return nil
	}
	type plain highlightWire
	return json.Unmarshal(data, (*plain)(h))
}

// ParseAnalysis 严格解析：不修复、不剥离代码块
func ParseAnalysis(raw string) (*models.AnalysisResult, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, apperrors.NewBadResponseError("response not valid JSON", err)
	}

	var missing []string
	for _, key := range models.RequiredAnalysisKeys {
		value, ok := keys[key]
		if !ok || string(value) == "null" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewBadResponseError(
			fmt.Sprintf("response missing required key: %s", strings.Join(missing, ", ")), nil)
	}

	var wire analysisWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, apperrors.NewBadResponseError("response does not match analysis schema", err)
	}

	result := &models.AnalysisResult{
		Title:         wire.Title,
		Summary:       wire.Summary,
		Highlights:    make([]models.Highlight, 0, len(wire.Highlights)),
		KeyTakeaways:  wire.KeyTakeaways,
		SimilarTopics: wire.SimilarTopics,
		FollowUps:     wire.FollowUps,
		Tags:          wire.Tags,
	}
	for _, h := range wire.Highlights {
		result.Highlights = append(result.Highlights, models.Highlight{Text: h.Text, Snippet: h.Snippet})
	}

	if hasValue(wire.TLDR) {
		var tldr models.TLDR
		if json.Unmarshal(wire.TLDR, &tldr) == nil {
			result.TLDR = &tldr
		}
	}
	if hasValue(wire.Categories) {
		var categories models.Categories
		if json.Unmarshal(wire.Categories, &categories) == nil {
			result.Categories = &categories
		}
	}

	return result, nil
}

func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
