package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
)

func newTestProvider(t *testing.T, baseURL, apiKey string) *Provider {
	t.Helper()
	p := &Provider{baseURL: defaultBaseURL, defaultModel: defaultModel}
	if err := p.Initialize(map[string]string{"api_key": apiKey, "base_url": baseURL, "timeout": "5s"}); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	return p
}

func TestCompleteTextSendsJSONModeAndReadsUsage(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("缺少 Bearer 认证头")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"x\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, "test-key")
	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", JSONMode: true, MaxTokens: 100})
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}

	format, _ := got["response_format"].(map[string]interface{})
	if format["type"] != "json_object" {
		t.Errorf("JSON模式应设置 response_format, got %v", got["response_format"])
	}
	if got["model"] != defaultModel {
		t.Errorf("应使用默认模型, got %v", got["model"])
	}
	if !resp.UsageReported || resp.TokensUsed != 15 || resp.PromptTokens != 10 || resp.OutputTokens != 5 {
		t.Errorf("用量读取错误: %+v", resp)
	}
	if resp.Text != `{"title":"x"}` {
		t.Errorf("文本内容错误: %q", resp.Text)
	}
}

func TestCompleteTextWithoutKey(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:1", "")
	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if !apperrors.IsConfigMissingError(err) {
		t.Fatalf("缺少密钥应返回 config_missing, got %v", err)
	}
}

func TestCompleteTextNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL, "test-key")
	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if apperrors.TypeOf(err) != apperrors.ErrorTypeProvider {
		t.Fatalf("非200应返回 provider_error, got %v", err)
	}
}
