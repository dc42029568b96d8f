// internal/services/mock.go
package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/Corphon/PodcastDigest/internal/models"
)

const (
	// MockProvider / MockModel 标记演示数据
	MockProvider = "mock"
	MockModel    = "demo"

	// DemoTranscript 未配置转写服务时使用
	DemoTranscript = "This is a demo transcript. In production, this would contain the actual podcast transcript extracted from the audio file. The transcript would include all spoken words from the podcast episode."

	wordsPerMinute = 150
)

var mockHighlights = []struct {
	text    string
	seconds int64
}{
	{"Opening discussion sets the context for the main topic", 0},
	{"In-depth exploration of key concepts and ideas", 135},
	{"Expert insights and personal experiences shared", 330},
	{"Practical examples and real-world applications", 525},
	{"Concluding thoughts and recommendations", 720},
}

// DemoTranscriptData 演示转录：无句子、无发言人、时长为0
func DemoTranscriptData() *models.Transcript {
	return &models.Transcript{
		Text:         DemoTranscript,
		Chapters:     []models.Chapter{},
		Sentences:    []models.Sentence{},
		Utterances:   []models.Utterance{},
		SpeakerStats: []models.SpeakerStat{},
		Duration:     0,
	}
}

// MockAnalysis 确定性的占位分析结果
func MockAnalysis(transcript string) *models.AnalysisResult {
	minutes := int(math.Round(float64(len(strings.Fields(transcript))) / wordsPerMinute))

	highlights := make([]models.Highlight, 0, len(mockHighlights))
	for _, h := range mockHighlights {
		ts := FormatTimestamp(h.seconds * 1000)
		highlights = append(highlights, models.Highlight{
			Text:             h.text,
			Timestamp:        ts.Formatted,
			TimestampSeconds: ts.Seconds,
		})
	}

	return &models.AnalysisResult{
		Title: "Podcast Episode Analysis",
		Summary: fmt.Sprintf("This podcast episode covers various topics discussed over approximately %d minutes. "+
			"The conversation explores multiple perspectives and insights on the subject matter.", minutes),
		Highlights: highlights,
		KeyTakeaways: []string{
			"Understanding the fundamental principles discussed",
			"Practical applications for everyday situations",
			"Important considerations for implementation",
			"Common pitfalls to avoid",
			"Resources for further learning",
		},
		SimilarTopics: []models.SimilarTopic{
			{Topic: "Related Field A", Description: "Shares similar methodologies and approaches"},
			{Topic: "Related Field B", Description: "Complementary perspectives on the subject"},
			{Topic: "Related Field C", Description: "Additional context and background information"},
		},
		FollowUps: []string{
			"Explore advanced techniques in this area",
			"Research the historical development of these concepts",
			"Connect with experts in the field",
		},
		Tags: []string{"podcast", "analysis", "insights", "learning", "discussion"},
	}
}

// MockInvocation 包装为一次零成本的调用结果
func MockInvocation(transcript string) *models.ProviderInvocationResult {
	return &models.ProviderInvocationResult{
		Analysis: MockAnalysis(transcript),
		Provider: MockProvider,
		Model:    MockModel,
		Usage:    models.Usage{},
	}
}
