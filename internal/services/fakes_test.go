package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Corphon/PodcastDigest/internal/config"
	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/utils"
)

const validAnalysisJSON = `{
  "title": "Building in Public",
  "summary": "Two founders talk about shipping early.",
  "tldr": {"quickSummary": "Ship early.", "keyInsights": [{"insight": "Feedback loops", "snippet": "ship it early", "timestamp": "00:00:00"}], "readingTime": 3},
  "categories": {"primary": "business", "secondary": ["Startups"], "industry": "tech", "topics": ["launching"]},
  "highlights": [
    {"text": "Shipping early", "snippet": "ship it early", "timestamp": "99:99"},
    "A plain string highlight"
  ],
  "keyTakeaways": ["Ship"],
  "similarTopics": [{"topic": "Lean startup", "description": "Same idea"}],
  "followUps": ["How early is too early?"],
  "tags": ["startups"]
}`

// fakeProvider 记录调用次数并返回预设结果
type fakeProvider struct {
	mu         sync.Mutex
	name       string
	configured bool
	text       string
	err        error
	delay      time.Duration
	calls      int
	lastModel  string
	usage      *llm.CompletionResponse
}

func (f *fakeProvider) Initialize(map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                    { return f.name }
func (f *fakeProvider) GetDefaultModel() string            { return f.name + "-default" }
func (f *fakeProvider) IsConfigured() bool                 { return f.configured }

func (f *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastModel = req.Model
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.usage != nil {
		resp := *f.usage
		resp.Text = f.text
		return &resp, nil
	}
	return &llm.CompletionResponse{Text: f.text}, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, configured: true, text: validAnalysisJSON}
}

func failingProvider(name string, err error) *fakeProvider {
	return &fakeProvider{name: name, configured: true, err: err}
}

func unconfiguredProvider(name string) *fakeProvider {
	return &fakeProvider{
		name: name,
		err:  apperrors.NewConfigMissingError(name + " API key is not configured"),
	}
}

func testLogger() *utils.Logger {
	return utils.NewLogger(io.Discard, "error")
}

func testConfig() *config.Config {
	return &config.Config{
		UseGroq:         true,
		GroqAPIKey:      "groq-key",
		GeminiAPIKey:    "gemini-key",
		AnthropicAPIKey: "claude-key",
		LLMTimeout:      5 * time.Second,
	}
}

func newTestAnalysisService(cfg *config.Config, providers ...llm.Provider) *AnalysisService {
	logger := testLogger()
	return NewAnalysisService(cfg, llm.NewStaticRegistry(providers...), logger, utils.NewPipelineMetrics(nil, logger))
}

// fakeTranscriptSource 返回预设转录
type fakeTranscriptSource struct {
	transcript *models.Transcript
	err        error
	calls      int
}

func (f *fakeTranscriptSource) Extract(ctx context.Context, audioURL string) (*models.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}
