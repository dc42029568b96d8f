// internal/models/analysis.go
package models

// TimestampMatch 片段对齐后的时间点
type TimestampMatch struct {
	Seconds   int64  `json:"seconds"`
	Formatted string `json:"formatted"`
}

// Highlight 关键片段。Timestamp/TimestampSeconds/Speaker 由对齐器填充，不采用LLM给出的值
type Highlight struct {
	Text             string  `json:"text"`
	Snippet          string  `json:"snippet,omitempty"`
	Timestamp        string  `json:"timestamp"`
	TimestampSeconds int64   `json:"timestampSeconds"`
	Speaker          *string `json:"speaker"`
}

// SimilarTopic 相关话题
type SimilarTopic struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// KeyInsight TL;DR 中的要点
type KeyInsight struct {
	Insight   string `json:"insight"`
	Snippet   string `json:"snippet,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// WorthListening 收听建议
type WorthListening struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
	BestFor string `json:"bestFor"`
}

// TLDR 快速摘要
type TLDR struct {
	QuickSummary   string          `json:"quickSummary"`
	KeyInsights    []KeyInsight    `json:"keyInsights"`
	WorthListening *WorthListening `json:"worthListening,omitempty"`
	ReadingTime    int             `json:"readingTime"`
}

// Categories 内容分类
type Categories struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary"`
	Industry  string   `json:"industry"`
	Topics    []string `json:"topics"`
}

// AnalysisResult 每个提供者都必须输出的固定结构
// highlights 约定为5条，但使用方按变长处理
type AnalysisResult struct {
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	TLDR          *TLDR          `json:"tldr,omitempty"`
	Categories    *Categories    `json:"categories,omitempty"`
	Highlights    []Highlight    `json:"highlights"`
	KeyTakeaways  []string       `json:"keyTakeaways"`
	SimilarTopics []SimilarTopic `json:"similarTopics"`
	FollowUps     []string       `json:"followUps"`
	Tags          []string       `json:"tags"`
}

// RequiredAnalysisKeys 提供者响应必须包含的顶层字段
var RequiredAnalysisKeys = []string{
	"title",
	"summary",
	"highlights",
	"keyTakeaways",
	"similarTopics",
	"followUps",
	"tags",
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ProviderInvocationResult 一次提供者调用的结果
type ProviderInvocationResult struct {
	Analysis         *AnalysisResult `json:"analysis"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	ProcessingTimeMs int64           `json:"processingTime"`
	Usage            Usage           `json:"usage"`
}

// ModelInfo 本地可用模型
type ModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// ProviderStatus /api/providers 中的一项
type ProviderStatus struct {
	Icon        string      `json:"icon"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Cost        string      `json:"cost"`
	Available   bool        `json:"available"`
	Models      []ModelInfo `json:"models,omitempty"`
}
