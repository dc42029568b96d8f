// internal/services/cost.go
package services

import (
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/models"
)

// 每百万 token 的美元价格
type tokenPrice struct {
	input  float64
	output float64
}

var pricing = map[string]tokenPrice{
	llm.ProviderGroq:   {input: 0.59, output: 0.79},
	llm.ProviderClaude: {input: 3.00, output: 15.00},
	llm.ProviderGemini: {input: 0.075, output: 0.30},
}

// geminiFreeTierTokens 低于该总量的 Gemini 调用不计费
const geminiFreeTierTokens = 128000

// CalculateCost 纯函数，仅依赖价格表与用量
func CalculateCost(provider string, usage models.Usage) float64 {
	price, ok := pricing[provider]
	if !ok {
		// ollama、mock 及未知提供者
		return 0
	}
	if provider == llm.ProviderGemini && usage.TotalTokens < geminiFreeTierTokens {
		return 0
	}

	inputCost := float64(usage.PromptTokens) / 1_000_000 * price.input
	outputCost := float64(usage.CompletionTokens) / 1_000_000 * price.output
	return inputCost + outputCost
}
