// internal/llm/providers/groq/groq.go
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"
)

func init() {
	llm.Register(llm.ProviderGroq, func() llm.Provider {
		return &Provider{baseURL: defaultBaseURL, defaultModel: defaultModel}
	})
}

// Provider Groq 的 OpenAI 兼容接口
type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
}

func (p *Provider) Initialize(config map[string]string) error {
	p.apiKey = config["api_key"]
	p.baseURL = llm.ConfigValue(config, "base_url", p.baseURL)
	p.defaultModel = llm.ConfigValue(config, "default_model", p.defaultModel)
	p.client = llm.NewHTTPClient(config)
	return nil
}

func (p *Provider) GetName() string {
	return llm.ProviderGroq
}

func (p *Provider) GetDefaultModel() string {
	return p.defaultModel
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if !p.IsConfigured() {
		return nil, llm.NotConfiguredError(llm.ProviderGroq, "Groq")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	requestBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}
	if req.JSONMode {
		requestBody["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(llm.ProviderGroq, err, false)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &errorResp) == nil && errorResp.Error.Message != "" {
			return nil, llm.StatusError(llm.ProviderGroq, httpResp.StatusCode, errorResp.Error.Message)
		}
		return nil, llm.StatusError(llm.ProviderGroq, httpResp.StatusCode, llm.ExcerptBody(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewBadResponseError("Groq response envelope not valid JSON", err).WithProvider(llm.ProviderGroq)
	}

	if len(response.Choices) == 0 {
		return nil, apperrors.NewBadResponseError("Groq returned no choices", nil).WithProvider(llm.ProviderGroq)
	}

	result := &llm.CompletionResponse{
		Text:         response.Choices[0].Message.Content,
		FinishReason: response.Choices[0].FinishReason,
		ModelName:    model,
	}
	if response.Usage != nil {
		result.PromptTokens = response.Usage.PromptTokens
		result.OutputTokens = response.Usage.CompletionTokens
		result.TokensUsed = response.Usage.TotalTokens
		result.UsageReported = true
	}

	return result, nil
}
