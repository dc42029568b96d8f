// internal/models/podcast.go
package models

import "time"

// ProcessRequest 处理请求
type ProcessRequest struct {
	PodcastURL string `json:"podcastUrl" binding:"required" validate:"required,url"`
	Provider   string `json:"provider,omitempty" validate:"omitempty,oneof=auto groq gemini claude ollama"`
	Model      string `json:"model,omitempty" validate:"omitempty,max=128"`
}

// PlatformInfo 链接所属平台及页面/订阅源元数据
type PlatformInfo struct {
	Platform   string `json:"platform"`
	Name       string `json:"name"`
	Icon       string `json:"icon"`
	Color      string `json:"color"`
	YouTubeID  string `json:"youtubeId,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Title      string `json:"title,omitempty"`
	ShowName   string `json:"showName,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Published  string `json:"published,omitempty"`
	ResolvedBy string `json:"resolvedBy,omitempty"` // feed | page
}

// LLMProviderInfo 响应中的提供者/用量/费用
type LLMProviderInfo struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	Usage            Usage   `json:"usage"`
	Cost             float64 `json:"cost"`
	ProcessingTimeMs int64   `json:"processingTime"`
}

// PodcastResult 流水线的最终输出
type PodcastResult struct {
	ID               string          `json:"id"`
	Success          bool            `json:"success"`
	PodcastURL       string          `json:"podcastUrl"`
	AudioURL         string          `json:"audioUrl"`
	Duration         float64         `json:"duration"`
	Transcript       string          `json:"transcript"`
	TranscriptLength int             `json:"transcriptLength"`
	Chapters         []Chapter       `json:"chapters"`
	Sentences        []Sentence      `json:"sentences"`
	Utterances       []Utterance     `json:"utterances"`
	SpeakerStats     []SpeakerStat   `json:"speakerStats"`
	Analysis         *AnalysisResult `json:"analysis"`
	LLMProvider      LLMProviderInfo `json:"llmProvider"`
	Platform         PlatformInfo    `json:"platform"`
	ProcessingTime   string          `json:"processingTime"`
	Timestamp        time.Time       `json:"timestamp"`
}

// EpisodeSummary 历史列表中的条目
type EpisodeSummary struct {
	ID         string    `json:"id"`
	PodcastURL string    `json:"podcastUrl"`
	Title      string    `json:"title"`
	Platform   string    `json:"platform"`
	Provider   string    `json:"provider"`
	Cost       float64   `json:"cost"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Summary 生成历史列表条目
func (r *PodcastResult) Summary() EpisodeSummary {
	title := ""
	if r.Analysis != nil {
		title = r.Analysis.Title
	}
	return EpisodeSummary{
		ID:         r.ID,
		PodcastURL: r.PodcastURL,
		Title:      title,
		Platform:   r.Platform.Platform,
		Provider:   r.LLMProvider.Provider,
		Cost:       r.LLMProvider.Cost,
		CreatedAt:  r.Timestamp,
	}
}
