// internal/services/podcast_service.go
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/platform"
	"github.com/Corphon/PodcastDigest/internal/storage"
	"github.com/Corphon/PodcastDigest/internal/transcript"
	"github.com/Corphon/PodcastDigest/internal/utils"
)

const (
	// MinTranscriptLength 低于该长度的转录不送入模型
	MinTranscriptLength = 50
	// TranscriptExcerptLength 响应中保留的转录字符数
	TranscriptExcerptLength = 1000
)

// PlatformResolver 把页面或订阅源解析为音频地址
type PlatformResolver interface {
	Resolve(ctx context.Context, rawURL string) (*platform.Resolution, error)
}

// PodcastService 串联转写、分析、存储的流水线
type PodcastService struct {
	transcripts transcript.Source
	resolver    PlatformResolver
	analysis    *AnalysisService
	store       storage.EpisodeStore
	logger      *utils.Logger
	metrics     *utils.PipelineMetrics
	usage       UsageRecorder
	now         func() time.Time
}

// NewPodcastService resolver 与 store 可为 nil
func NewPodcastService(
	transcripts transcript.Source,
	resolver PlatformResolver,
	analysis *AnalysisService,
	store storage.EpisodeStore,
	logger *utils.Logger,
	metrics *utils.PipelineMetrics,
) *PodcastService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewPipelineMetrics(nil, logger)
	}
	if store == nil {
		store = storage.NopEpisodeStore{}
	}
	return &PodcastService{
		transcripts: transcripts,
		resolver:    resolver,
		analysis:    analysis,
		store:       store,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// SetUsageRecorder 成功处理后记录用量，可为 nil
func (s *PodcastService) SetUsageRecorder(recorder UsageRecorder) {
	s.usage = recorder
}

type nopReporter struct{}

func (nopReporter) Report(string, int, string) {}

// Process 顺序执行整条流水线；reporter 可为 nil
func (s *PodcastService) Process(ctx context.Context, req models.ProcessRequest, reporter ProgressReporter) (*models.PodcastResult, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	start := s.now()

	podcastURL := strings.TrimSpace(req.PodcastURL)
	if err := ValidatePodcastURL(podcastURL); err != nil {
		return nil, err
	}

	// 1. 平台识别与音频地址解析
	reporter.Report(StageResolving, 5, "Detecting platform")
	info := platform.DetectPlatform(podcastURL)
	audioURL := podcastURL
	if s.resolver != nil {
		res, err := s.resolver.Resolve(ctx, podcastURL)
		if err != nil {
			s.logger.Warn("Platform resolution failed, using original URL", map[string]interface{}{
				"url":   podcastURL,
				"error": err.Error(),
			})
		} else if res != nil {
			res.Apply(&info)
			if res.AudioURL != "" {
				audioURL = res.AudioURL
			}
		}
	}

	// 2. 转写
	reporter.Report(StageTranscribing, 15, "Extracting transcript")
	data, err := s.extractTranscript(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	characters := utf8.RuneCountInString(data.Text)
	if characters < MinTranscriptLength {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("transcript is too short (%d characters)", characters), nil)
	}
	s.logger.Info("Transcript extracted", map[string]interface{}{
		"characters": characters,
		"sentences":  len(data.Sentences),
	})

	// 3. 分析
	reporter.Report(StageAnalyzing, 60, "Analyzing transcript")
	invocation, err := s.analyze(ctx, req, data)
	if err != nil {
		return nil, err
	}

	// 4. 组装结果
	elapsed := s.now().Sub(start)
	result := &models.PodcastResult{
		ID:               uuid.New().String(),
		Success:          true,
		PodcastURL:       podcastURL,
		AudioURL:         audioURL,
		Duration:         data.Duration,
		Transcript:       excerpt(data.Text, TranscriptExcerptLength),
		TranscriptLength: characters,
		Chapters:         nonNil(data.Chapters),
		Sentences:        nonNil(data.Sentences),
		Utterances:       nonNil(data.Utterances),
		SpeakerStats:     nonNil(data.SpeakerStats),
		Analysis:         invocation.Analysis,
		LLMProvider: models.LLMProviderInfo{
			Provider:         invocation.Provider,
			Model:            invocation.Model,
			Usage:            invocation.Usage,
			Cost:             CalculateCost(invocation.Provider, invocation.Usage),
			ProcessingTimeMs: invocation.ProcessingTimeMs,
		},
		Platform:       info,
		ProcessingTime: fmt.Sprintf("%.2fs", elapsed.Seconds()),
		Timestamp:      s.now().UTC().Truncate(time.Millisecond),
	}

	// 5. 保存失败不影响返回
	reporter.Report(StageSaving, 90, "Saving results")
	if err := s.store.Save(ctx, result); err != nil {
		s.logger.Warn("Failed to save episode", map[string]interface{}{
			"episode_id": result.ID,
			"error":      err.Error(),
		})
	}

	if s.usage != nil {
		s.usage.RecordEpisode(result.LLMProvider.Provider, result.LLMProvider.Usage, result.LLMProvider.Cost)
	}

	s.logger.Info("Podcast processed", map[string]interface{}{
		"episode_id":      result.ID,
		"provider":        result.LLMProvider.Provider,
		"cost":            result.LLMProvider.Cost,
		"processing_time": result.ProcessingTime,
	})
	return result, nil
}

// extractTranscript 转写服务未配置时使用演示转录
func (s *PodcastService) extractTranscript(ctx context.Context, audioURL string) (*models.Transcript, error) {
	if s.transcripts == nil {
		s.metrics.RecordMock("transcript")
		return DemoTranscriptData(), nil
	}

	start := time.Now()
	data, err := s.transcripts.Extract(ctx, audioURL)
	s.metrics.RecordTranscript(time.Since(start), err)
	if err != nil {
		if apperrors.IsConfigMissingError(err) {
			s.logger.Info("Transcription service not configured, using demo transcript", nil)
			s.metrics.RecordMock("transcript")
			return DemoTranscriptData(), nil
		}
		return nil, apperrors.WrapError(err, "failed to extract transcript", apperrors.ErrorTypeProvider)
	}
	return data, nil
}

// analyze 所有提供者不可用时退回演示分析
func (s *PodcastService) analyze(ctx context.Context, req models.ProcessRequest, data *models.Transcript) (*models.ProviderInvocationResult, error) {
	invocation, err := s.analysis.AnalyzeWithProvider(ctx, req.Provider, AnalysisInput{
		Transcript: data.Text,
		Sentences:  data.Sentences,
		Utterances: data.Utterances,
		Model:      req.Model,
	})
	if err == nil {
		return invocation, nil
	}

	if apperrors.IsUnavailable(err) {
		s.logger.Info("No LLM provider available, using demo analysis", map[string]interface{}{
			"reason": err.Error(),
		})
		s.metrics.RecordMock("analysis")
		return MockInvocation(data.Text), nil
	}
	return nil, err
}

// ValidatePodcastURL 只接受带主机名的 http/https 地址
func ValidatePodcastURL(raw string) error {
	if raw == "" {
		return apperrors.NewValidationError("podcast URL is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.NewValidationError("invalid URL format", err)
	}
	return nil
}

// excerpt 按字符截取前 limit 个
func excerpt(text string, limit int) string {
	count := 0
	for i := range text {
		if count == limit {
			return text[:i] + "..."
		}
		count++
	}
	return text
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
