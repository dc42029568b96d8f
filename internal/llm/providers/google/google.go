// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash-exp"
)

func init() {
	llm.Register(llm.ProviderGemini, func() llm.Provider {
		return &Provider{baseURL: defaultBaseURL, defaultModel: defaultModel}
	})
}

// Provider Google Gemini generateContent 接口
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
	return llm.ProviderGemini
}

func (p *Provider) GetDefaultModel() string {
	return p.defaultModel
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// CompleteText 不读取 usageMetadata：用量统一由调用方按字符数估算
func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if !p.IsConfigured() {
		return nil, llm.NotConfiguredError(llm.ProviderGemini, "Gemini")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	generationConfig := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.JSONMode {
		generationConfig["responseMimeType"] = "application/json"
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": req.Prompt}}},
		},
		"generationConfig": generationConfig,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	// 构建URL (注意Gemini API的结构与OpenAI不同)
	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(llm.ProviderGemini, err, false)
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
			return nil, llm.StatusError(llm.ProviderGemini, httpResp.StatusCode, errorResp.Error.Message)
		}
		return nil, llm.StatusError(llm.ProviderGemini, httpResp.StatusCode, llm.ExcerptBody(body))
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewBadResponseError("Gemini response envelope not valid JSON", err).WithProvider(llm.ProviderGemini)
	}

	if len(response.Candidates) == 0 {
		return nil, apperrors.NewBadResponseError("Gemini returned no candidates", nil).WithProvider(llm.ProviderGemini)
	}

	// 提取文本内容
	var resultText string
	for _, part := range response.Candidates[0].Content.Parts {
		resultText += part.Text
	}

	return &llm.CompletionResponse{
		Text:         resultText,
		FinishReason: response.Candidates[0].FinishReason,
		ModelName:    model,
	}, nil
}
