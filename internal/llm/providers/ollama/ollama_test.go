package ollama

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
)

func TestCompleteTextRequestsJSONFormat(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"llama3.2","response":"{}","done":true,"prompt_eval_count":12,"eval_count":8}`))
	}))
	defer server.Close()

	p := &Provider{}
	_ = p.Initialize(map[string]string{"base_url": server.URL + "/"})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", JSONMode: true})
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if got["format"] != "json" || got["stream"] != false {
		t.Errorf("应请求非流式 json 输出, got %v", got)
	}
	if resp.TokensUsed != 20 || !resp.UsageReported {
		t.Errorf("用量应为 12+8, got %+v", resp)
	}
}

func TestCompleteTextConnectionRefused(t *testing.T) {
	// 占用后立即释放端口，确保无人监听
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := &Provider{}
	_ = p.Initialize(map[string]string{"base_url": "http://" + addr})

	_, err = p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if !apperrors.IsServiceDownError(err) {
		t.Fatalf("连接被拒绝应返回 service_down, got %v", err)
	}
	if p.CheckAvailability(context.Background()) {
		t.Error("服务未运行时不应可用")
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest","size":123},{"name":"mistral:latest"}]}`))
	}))
	defer server.Close()

	p := &Provider{}
	_ = p.Initialize(map[string]string{"base_url": server.URL})

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("列出模型失败: %v", err)
	}
	if len(models) != 2 || models[0].Name != "llama3.2:latest" {
		t.Errorf("模型列表错误: %+v", models)
	}
}
