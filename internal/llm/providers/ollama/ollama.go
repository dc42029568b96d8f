// internal/llm/providers/ollama/ollama.go
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/models"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.3:70b"

	// 可用性探测的超时
	probeTimeout = 2 * time.Second
)

func init() {
	llm.Register(llm.ProviderOllama, func() llm.Provider {
		return &Provider{baseURL: defaultBaseURL, defaultModel: defaultModel}
	})
}

// Provider 本地 Ollama 服务，无需密钥
type Provider struct {
	baseURL      string
	client       *http.Client
	defaultModel string
}

// ModelInfo /api/tags 中的单个模型
type ModelInfo = models.ModelInfo

func (p *Provider) Initialize(config map[string]string) error {
	p.baseURL = strings.TrimRight(llm.ConfigValue(config, "base_url", p.baseURL), "/")
	p.defaultModel = llm.ConfigValue(config, "default_model", p.defaultModel)
	p.client = llm.NewHTTPClient(config)
	return nil
}

func (p *Provider) GetName() string {
	return llm.ProviderOllama
}

func (p *Provider) GetDefaultModel() string {
	return p.defaultModel
}

func (p *Provider) IsConfigured() bool {
	return p.baseURL != ""
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	options := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	requestBody := map[string]interface{}{
		"model":   model,
		"prompt":  req.Prompt,
		"stream":  false,
		"options": options,
	}
	if req.JSONMode {
		requestBody["format"] = "json"
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(llm.ProviderOllama, err, true)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		var errorResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errorResp) == nil && errorResp.Error != "" {
			return nil, llm.StatusError(llm.ProviderOllama, httpResp.StatusCode, errorResp.Error)
		}
		return nil, llm.StatusError(llm.ProviderOllama, httpResp.StatusCode, llm.ExcerptBody(body))
	}

	var response struct {
		Model           string `json:"model"`
		Response        string `json:"response"`
		Done            bool   `json:"done"`
		DoneReason      string `json:"done_reason"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewBadResponseError("Ollama response envelope not valid JSON", err).WithProvider(llm.ProviderOllama)
	}

	result := &llm.CompletionResponse{
		Text:         response.Response,
		FinishReason: response.DoneReason,
		ModelName:    model,
	}
	// 计数为零时交由调用方估算
	if response.PromptEvalCount > 0 || response.EvalCount > 0 {
		result.PromptTokens = response.PromptEvalCount
		result.OutputTokens = response.EvalCount
		result.TokensUsed = response.PromptEvalCount + response.EvalCount
		result.UsageReported = true
	}

	return result, nil
}

// ListModels 列出本地已下载的模型
func (p *Provider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(llm.ProviderOllama, err, true)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, llm.StatusError(llm.ProviderOllama, httpResp.StatusCode, llm.ExcerptBody(body))
	}

	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&tags); err != nil {
		return nil, apperrors.NewBadResponseError("Ollama tags response not valid JSON", err).WithProvider(llm.ProviderOllama)
	}
	return tags.Models, nil
}

// CheckAvailability 服务可达即视为可用
func (p *Provider) CheckAvailability(ctx context.Context) bool {
	_, err := p.ListModels(ctx)
	return err == nil
}
