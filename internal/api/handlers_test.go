package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/PodcastDigest/internal/config"
	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/services"
	"github.com/Corphon/PodcastDigest/internal/storage"
	"github.com/Corphon/PodcastDigest/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	name       string
	configured bool
	text       string
	err        error
}

func (s *stubProvider) Initialize(map[string]string) error { return nil }
func (s *stubProvider) GetName() string                    { return s.name }
func (s *stubProvider) GetDefaultModel() string            { return s.name + "-default" }
func (s *stubProvider) IsConfigured() bool                 { return s.configured }

func (s *stubProvider) CompleteText(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Text: s.text}, nil
}

type testEnv struct {
	handler *Handler
	router  *gin.Engine
	store   storage.EpisodeStore
	metrics *utils.PipelineMetrics
}

// newTestEnv 无转写服务，Claude 未配置：流水线走演示数据
func newTestEnv(t *testing.T, cfg *config.Config, providers ...llm.Provider) *testEnv {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{LLMTimeout: 5 * time.Second}
	}
	if len(providers) == 0 {
		providers = []llm.Provider{&stubProvider{name: llm.ProviderClaude}}
	}

	logger := utils.NewLogger(io.Discard, "error")
	metrics := utils.NewPipelineMetrics(nil, logger)
	store, err := storage.NewFileEpisodeStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	analysis := services.NewAnalysisService(cfg, llm.NewStaticRegistry(providers...), logger, metrics)
	podcasts := services.NewPodcastService(nil, nil, analysis, store, logger, metrics)

	handler, err := NewHandler(Dependencies{
		Podcasts: podcasts,
		Analysis: analysis,
		Progress: services.NewProgressService(),
		Episodes: store,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("创建处理器失败: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		handler.Close(ctx)
	})

	return &testEnv{
		handler: handler,
		router:  SetupRouter(handler, true),
		store:   store,
		metrics: metrics,
	}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析错误响应失败: %v (%s)", err, w.Body.String())
	}
	if resp.Success || resp.Error == nil {
		t.Fatalf("期望错误信封, 得到 %s", w.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}

	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" || body["message"] != "Podcast Summarizer API is running" {
		t.Errorf("响应 = %v", body)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("缺少请求ID头")
	}
}

func TestProcessPodcastFallsBackToDemoData(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/process-podcast", map[string]string{
		"podcastUrl": "https://example.com/episode.mp3",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body = %s", w.Code, w.Body.String())
	}

	var result models.PodcastResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if !result.Success || result.ID == "" {
		t.Errorf("结果 = %+v", result)
	}
	if result.LLMProvider.Provider != services.MockProvider || result.LLMProvider.Cost != 0 {
		t.Errorf("提供者 = %+v", result.LLMProvider)
	}
	if result.Platform.Platform != "audio" {
		t.Errorf("平台 = %q", result.Platform.Platform)
	}

	// 结果已写入存储
	if _, err := env.store.Get(context.Background(), result.ID); err != nil {
		t.Errorf("读取已保存结果失败: %v", err)
	}
}

func TestProcessPodcastValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing url", map[string]string{}},
		{"not a url", map[string]string{"podcastUrl": "not a url"}},
		{"unknown provider", map[string]string{"podcastUrl": "https://example.com/a.mp3", "provider": "openai"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/process-podcast", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("状态码 = %d, body = %s", w.Code, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Error.Code != ErrorBadRequest {
				t.Errorf("错误代码 = %q", resp.Error.Code)
			}
		})
	}
}

func TestProcessPodcastExplicitProviderFailureMapsToBadGateway(t *testing.T) {
	cfg := &config.Config{GroqAPIKey: "k", UseGroq: true, LLMTimeout: 5 * time.Second}
	groq := &stubProvider{
		name:       llm.ProviderGroq,
		configured: true,
		err:        apperrors.NewProviderError("groq API returned 500: boom", nil).WithProvider(llm.ProviderGroq),
	}
	env := newTestEnv(t, cfg, groq)

	w := env.do(http.MethodPost, "/api/process-podcast", map[string]string{
		"podcastUrl": "https://example.com/episode.mp3",
		"provider":   "groq",
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("状态码 = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeError(t, w)
	if resp.Error.Code != ErrorProviderFailed || resp.Error.Provider != llm.ProviderGroq {
		t.Errorf("错误 = %+v", resp.Error)
	}
}

func TestStatusForError(t *testing.T) {
	tests := map[apperrors.ErrorType]int{
		apperrors.ErrorTypeValidation:    http.StatusBadRequest,
		apperrors.ErrorTypeNotFound:      http.StatusNotFound,
		apperrors.ErrorTypeConfigMissing: http.StatusServiceUnavailable,
		apperrors.ErrorTypeServiceDown:   http.StatusServiceUnavailable,
		apperrors.ErrorTypeTimeout:       http.StatusGatewayTimeout,
		apperrors.ErrorTypeBadResponse:   http.StatusBadGateway,
		apperrors.ErrorTypeProvider:      http.StatusBadGateway,
		apperrors.ErrorTypeUnknown:       http.StatusInternalServerError,
	}
	for errType, want := range tests {
		if got := StatusForError(errType); got != want {
			t.Errorf("StatusForError(%s) = %d, want %d", errType, got, want)
		}
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	if got := sanitizeErrorMessage("request failed: ?key=abc123"); got != "An internal error occurred" {
		t.Errorf("未脱敏: %q", got)
	}
	if got := sanitizeErrorMessage("transcript is too short (12 characters)"); got != "transcript is too short (12 characters)" {
		t.Errorf("普通信息被修改: %q", got)
	}
}

func TestGetProviders(t *testing.T) {
	cfg := &config.Config{GeminiAPIKey: "g", LLMTimeout: time.Second}
	env := newTestEnv(t, cfg)

	w := env.do(http.MethodGet, "/api/providers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}

	var body struct {
		Providers map[string]models.ProviderStatus `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	for _, name := range []string{"auto", "groq", "gemini", "ollama", "claude"} {
		if _, ok := body.Providers[name]; !ok {
			t.Errorf("缺少提供者 %s", name)
		}
	}
	if !body.Providers["gemini"].Available || body.Providers["groq"].Available {
		t.Errorf("可用状态 = %+v", body.Providers)
	}
}

func waitForTask(t *testing.T, env *testEnv, taskID string) services.ProgressUpdate {
	t.Helper()
	tracker, ok := env.handler.Progress.GetTracker(taskID)
	if !ok {
		t.Fatalf("任务 %s 不存在", taskID)
	}
	select {
	case <-tracker.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("任务未在时限内结束")
	}
	return tracker.Snapshot()
}

func TestCreateJobCompletesAndStoresEpisode(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/jobs", map[string]string{
		"podcastUrl": "https://example.com/episode.mp3",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("状态码 = %d, body = %s", w.Code, w.Body.String())
	}

	var accepted map[string]string
	json.Unmarshal(w.Body.Bytes(), &accepted)
	taskID := accepted["taskId"]
	if taskID == "" {
		t.Fatalf("缺少 taskId: %s", w.Body.String())
	}

	final := waitForTask(t, env, taskID)
	if final.Status != services.StatusCompleted || final.Progress != 100 || final.EpisodeID == "" {
		t.Fatalf("最终状态 = %+v", final)
	}

	w = env.do(http.MethodGet, "/api/episodes/"+final.EpisodeID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("读取节目状态码 = %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/jobs/"+taskID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("任务状态码 = %d", w.Code)
	}
	env.handler.jobs.Wait()
	if env.metrics.Collector().GetGauge("jobs_in_flight") != 0 {
		t.Error("任务结束后 jobs_in_flight 应归零")
	}
}

func TestCreateJobFailureIsReported(t *testing.T) {
	cfg := &config.Config{AnthropicAPIKey: "k", LLMTimeout: 5 * time.Second}
	claude := &stubProvider{name: llm.ProviderClaude, configured: true, text: "not json"}
	env := newTestEnv(t, cfg, claude)

	w := env.do(http.MethodPost, "/api/jobs", map[string]string{
		"podcastUrl": "https://example.com/episode.mp3",
	})
	var accepted map[string]string
	json.Unmarshal(w.Body.Bytes(), &accepted)

	final := waitForTask(t, env, accepted["taskId"])
	if final.Status != services.StatusFailed || final.ErrorCode != ErrorMalformedLLMOutput {
		t.Fatalf("最终状态 = %+v", final)
	}
}

func TestSubscribeProgressStreamsUntilDone(t *testing.T) {
	env := newTestEnv(t, nil)
	tracker := env.handler.Progress.CreateTracker("task-sse")
	tracker.Report(services.StageTranscribing, 15, "Extracting transcript")
	tracker.Complete("episode-1", "")

	w := env.do(http.MethodGet, "/api/progress/task-sse", nil)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: progress") || !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("SSE 内容 = %s", body)
	}
}

func TestProgressUnknownTask(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/progress/nope", "/ws/progress/nope", "/api/jobs/nope"} {
		w := env.do(http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s 状态码 = %d", path, w.Code)
			continue
		}
		if resp := decodeError(t, w); resp.Error.Code != ErrorTaskNotFound {
			t.Errorf("%s 错误代码 = %q", path, resp.Error.Code)
		}
	}
}

func TestProgressWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	tracker := env.handler.Progress.CreateTracker("task-ws")

	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/progress/task-ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first progressMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("读取初始状态失败: %v", err)
	}
	if first.Type != "progress" || first.Data.Stage != services.StageQueued {
		t.Errorf("初始消息 = %+v", first)
	}

	tracker.Report(services.StageAnalyzing, 60, "Analyzing transcript")
	tracker.Complete("episode-2", "")

	var last progressMessage
	for {
		var msg progressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("期望正常关闭, 得到 %v", err)
			}
			break
		}
		last = msg
	}
	if last.Data.Status != services.StatusCompleted || last.Data.EpisodeID != "episode-2" {
		t.Errorf("最后一条消息 = %+v", last)
	}
}

func TestEpisodesListAndChapters(t *testing.T) {
	env := newTestEnv(t, nil)

	episode := &models.PodcastResult{
		ID:         "0b7f9c1e-2d4a-4f7e-9a55-1c2b3d4e5f60",
		Success:    true,
		PodcastURL: "https://example.com/e.mp3",
		Analysis:   &models.AnalysisResult{Title: "Stored episode"},
		Chapters: []models.Chapter{
			{Headline: "Intro", Start: 0, End: 65000},
			{Headline: "Main", Start: 65000, End: 3725500},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := env.store.Save(context.Background(), episode); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	w := env.do(http.MethodGet, "/api/episodes?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("列表状态码 = %d", w.Code)
	}
	var list struct {
		Success bool `json:"success"`
		Data    struct {
			Episodes []models.EpisodeSummary `json:"episodes"`
			Count    int                     `json:"count"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if !list.Success || list.Data.Count != 1 || list.Data.Episodes[0].Title != "Stored episode" {
		t.Errorf("列表 = %s", w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/episodes/"+episode.ID+"/chapters.vtt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("章节状态码 = %d", w.Code)
	}
	vtt := w.Body.String()
	if !strings.HasPrefix(vtt, "WEBVTT") || !strings.Contains(vtt, "00:01:05.000 --> 01:02:05.500") {
		t.Errorf("VTT = %s", vtt)
	}

	if w := env.do(http.MethodGet, "/api/episodes?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("非法 limit 状态码 = %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/episodes/missing-id", nil); w.Code != http.StatusNotFound {
		t.Errorf("不存在的节目状态码 = %d", w.Code)
	}

	if w := env.do(http.MethodDelete, "/api/episodes/"+episode.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("删除状态码 = %d, body = %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodGet, "/api/episodes/"+episode.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("删除后读取状态码 = %d", w.Code)
	}
	w = env.do(http.MethodDelete, "/api/episodes/"+episode.ID, nil)
	if w.Code != http.StatusNotFound || decodeError(t, w).Error.Code != ErrorNotFound {
		t.Errorf("重复删除 = %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/limited", rl.ByIP(2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("状态码序列 = %v", codes)
	}
}

func TestProcessingRateLimitThroughRouter(t *testing.T) {
	env := newTestEnv(t, nil)

	// 请求体非法，限流之后由处理器返回 400
	for i := 1; i <= ProcessingLimit; i++ {
		w := env.do(http.MethodPost, "/api/process-podcast", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("第 %d 次请求状态码 = %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(ProcessingLimit) {
			t.Errorf("X-RateLimit-Limit = %q", got)
		}
	}

	w := env.do(http.MethodPost, "/api/process-podcast", map[string]string{})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("第 %d 次请求状态码 = %d, want 429", ProcessingLimit+1, w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrorRateLimited {
		t.Errorf("错误代码 = %q", resp.Error.Code)
	}

	// 普通接口不受处理限额影响
	if w := env.do(http.MethodGet, "/api/health", nil); w.Code != http.StatusOK {
		t.Errorf("health 状态码 = %d", w.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/api/health", nil)

	w := env.do(http.MethodGet, "/api/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	if got := env.metrics.Collector().GetCounterValue("api_requests_total"); got < 1 {
		t.Errorf("api_requests_total = %d", got)
	}
}
