package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
)

func TestCompleteTextHeadersAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "claude-key" || r.Header.Get("Anthropic-Version") != defaultAPIVersion {
			t.Errorf("缺少认证或版本头: %v", r.Header)
		}
		_, _ = w.Write([]byte(`{"model":"m","stop_reason":"end_turn","content":[{"type":"text","text":"{}"}],"usage":{"input_tokens":7,"output_tokens":3}}`))
	}))
	defer server.Close()

	p := &Provider{baseURL: defaultBaseURL, apiVersion: defaultAPIVersion, defaultModel: defaultModel}
	_ = p.Initialize(map[string]string{"api_key": "claude-key", "base_url": server.URL})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if !resp.UsageReported || resp.TokensUsed != 10 {
		t.Errorf("用量应为 7+3, got %+v", resp)
	}
}

func TestCompleteTextMalformedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p := &Provider{baseURL: defaultBaseURL, apiVersion: defaultAPIVersion, defaultModel: defaultModel}
	_ = p.Initialize(map[string]string{"api_key": "claude-key", "base_url": server.URL})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if !apperrors.IsBadResponseError(err) {
		t.Fatalf("应返回 bad_response, got %v", err)
	}
}
