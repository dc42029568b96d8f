// internal/llm/providers/anthropic/anthropic.go
package anthropic

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
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultModel      = "claude-3-5-sonnet-20241022"
)

func init() {
	llm.Register(llm.ProviderClaude, func() llm.Provider {
		return &Provider{
			baseURL:      defaultBaseURL,
			apiVersion:   defaultAPIVersion,
			defaultModel: defaultModel,
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	apiVersion   string
	client       *http.Client
	defaultModel string
}

func (p *Provider) Initialize(config map[string]string) error {
	p.apiKey = config["api_key"]
	p.baseURL = llm.ConfigValue(config, "base_url", p.baseURL)
	p.apiVersion = llm.ConfigValue(config, "api_version", p.apiVersion)
	p.defaultModel = llm.ConfigValue(config, "default_model", p.defaultModel)
	p.client = llm.NewHTTPClient(config)
	return nil
}

func (p *Provider) GetName() string {
	return llm.ProviderClaude
}

func (p *Provider) GetDefaultModel() string {
	return p.defaultModel
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if !p.IsConfigured() {
		return nil, llm.NotConfiguredError(llm.ProviderClaude, "Anthropic")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// max_tokens 为必填项
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// Messages API 没有JSON模式，依靠提示词约束输出
	requestBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", p.apiVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(llm.ProviderClaude, err, false)
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
			return nil, llm.StatusError(llm.ProviderClaude, httpResp.StatusCode, errorResp.Error.Message)
		}
		return nil, llm.StatusError(llm.ProviderClaude, httpResp.StatusCode, llm.ExcerptBody(body))
	}

	var response struct {
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Content    []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewBadResponseError("Anthropic response envelope not valid JSON", err).WithProvider(llm.ProviderClaude)
	}

	// 提取文本内容
	var textContent string
	for _, content := range response.Content {
		if content.Type == "text" {
			textContent = content.Text
			break
		}
	}

	if textContent == "" {
		return nil, apperrors.NewBadResponseError("Anthropic returned no text content", nil).WithProvider(llm.ProviderClaude)
	}

	result := &llm.CompletionResponse{
		Text:         textContent,
		FinishReason: response.StopReason,
		ModelName:    model,
	}
	if response.Usage != nil {
		result.PromptTokens = response.Usage.InputTokens
		result.OutputTokens = response.Usage.OutputTokens
		result.TokensUsed = response.Usage.InputTokens + response.Usage.OutputTokens
		result.UsageReported = true
	}

	return result, nil
}
