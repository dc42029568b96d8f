// internal/transcript/assemblyai.go
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/utils"
)

const (
	DefaultAssemblyAIBaseURL = "https://api.assemblyai.com"
	serviceName              = "assemblyai"
)

// AssemblyAIClient 提交转写任务并轮询结果
type AssemblyAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	policy  PollPolicy
	logger  *utils.Logger
}

// NewAssemblyAIClient 创建客户端，apiKey 为空时 Extract 返回 config_missing
func NewAssemblyAIClient(apiKey, baseURL string, policy PollPolicy, logger *utils.Logger) *AssemblyAIClient {
	if baseURL == "" {
		baseURL = DefaultAssemblyAIBaseURL
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &AssemblyAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		policy:  policy,
		logger:  logger,
	}
}

// IsConfigured 是否具备API密钥
func (c *AssemblyAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

type transcriptJob struct {
	ID            string             `json:"id"`
	Status        string             `json:"status"`
	Error         string             `json:"error"`
	Text          string             `json:"text"`
	AudioDuration float64            `json:"audio_duration"`
	Chapters      []models.Chapter   `json:"chapters"`
	Utterances    []models.Utterance `json:"utterances"`
}

// Extract 提交任务，轮询至完成后拉取句子
func (c *AssemblyAIClient) Extract(ctx context.Context, audioURL string) (*models.Transcript, error) {
	if !c.IsConfigured() {
		return nil, apperrors.NewConfigMissingError("AssemblyAI API key is not configured").WithProvider(serviceName)
	}

	job, err := c.submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Transcription started", map[string]interface{}{"transcript_id": job.ID})

	done, err := c.waitForCompletion(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	sentences, err := c.fetchSentences(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	result := &models.Transcript{
		ID:         done.ID,
		Text:       done.Text,
		Chapters:   nonNilChapters(done.Chapters),
		Sentences:  sentences,
		Utterances: nonNilUtterances(done.Utterances),
		Duration:   done.AudioDuration,
	}
	result.SpeakerStats = SpeakerStats(result.Utterances)

	c.logger.Info("Transcription completed", map[string]interface{}{
		"transcript_id":  job.ID,
		"characters":     len(result.Text),
		"sentence_count": len(result.Sentences),
		"speaker_count":  len(result.SpeakerStats),
	})
	return result, nil
}

func (c *AssemblyAIClient) submit(ctx context.Context, audioURL string) (*transcriptJob, error) {
	body, err := json.Marshal(map[string]interface{}{
		"audio_url":      audioURL,
		"auto_chapters":  true,
		"speaker_labels": true,
		"punctuate":      true,
		"format_text":    true,
	})
	if err != nil {
		return nil, err
	}

	var job transcriptJob
	if err := c.do(ctx, http.MethodPost, "/v2/transcript", body, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, apperrors.NewBadResponseError("transcription service returned no job id", nil).WithProvider(serviceName)
	}
	return &job, nil
}

// waitForCompletion 按策略轮询，超出总时限返回 timeout
func (c *AssemblyAIClient) waitForCompletion(ctx context.Context, id string) (*transcriptJob, error) {
	timeout := c.policy.Timeout
	if timeout <= 0 {
		timeout = DefaultPollPolicy().Timeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := c.policy.Interval
	if interval <= 0 {
		interval = DefaultPollPolicy().Interval
	}
	start := time.Now()
	attempts := 0

	for {
		var job transcriptJob
		if err := c.do(pollCtx, http.MethodGet, "/v2/transcript/"+id, nil, &job); err != nil {
			return nil, c.timeoutOr(ctx, pollCtx, err)
		}

		switch job.Status {
		case "completed":
			return &job, nil
		case "error":
			return nil, apperrors.NewProviderError(fmt.Sprintf("transcription failed: %s", job.Error), nil).WithProvider(serviceName)
		}

		attempts++
		if attempts%10 == 0 {
			c.logger.Info("Still transcribing", map[string]interface{}{
				"transcript_id": id,
				"status":        job.Status,
				"elapsed":       time.Since(start).Round(time.Second).String(),
			})
		}

		if err := sleep(pollCtx, interval); err != nil {
			return nil, c.timeoutOr(ctx, pollCtx, err)
		}
		interval = c.policy.next(interval)
	}
}

// timeoutOr 总时限触发时返回 timeout，调用方取消则原样返回
func (c *AssemblyAIClient) timeoutOr(parent, pollCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("transcription timed out", err).WithProvider(serviceName)
	}
	return err
}

func (c *AssemblyAIClient) fetchSentences(ctx context.Context, id string) ([]models.Sentence, error) {
	var resp struct {
		Sentences []models.Sentence `json:"sentences"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/transcript/"+id+"/sentences", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Sentences == nil {
		return []models.Sentence{}, nil
	}
	return resp.Sentences, nil
}

// do 发送请求并解码JSON响应
func (c *AssemblyAIClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.NewProviderError("transcription request failed", err).WithProvider(serviceName)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewProviderError(
			fmt.Sprintf("transcription service returned %d: %s", resp.StatusCode, string(data)), nil,
		).WithProvider(serviceName)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewBadResponseError("transcription response not valid JSON", err).WithProvider(serviceName)
	}
	return nil
}

func nonNilChapters(c []models.Chapter) []models.Chapter {
	if c == nil {
		return []models.Chapter{}
	}
	return c
}

func nonNilUtterances(u []models.Utterance) []models.Utterance {
	if u == nil {
		return []models.Utterance{}
	}
	return u
}
