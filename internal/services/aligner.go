// internal/services/aligner.go
package services

import (
	"fmt"
	"strings"

	"github.com/Corphon/PodcastDigest/internal/models"
)

const (
	// MatchThreshold 词重叠得分必须严格大于该值才算匹配
	MatchThreshold = 0.30
	// UnmatchedTimestamp 未匹配时的占位时间
	UnmatchedTimestamp = "00:00"
)

func unmatched() models.TimestampMatch {
	return models.TimestampMatch{Seconds: 0, Formatted: UnmatchedTimestamp}
}

// FindTimestampForText 在句子列表中定位片段，返回对应开始时间
func FindTimestampForText(snippet string, sentences []models.Sentence) models.TimestampMatch {
	if snippet == "" || len(sentences) == 0 {
		return unmatched()
	}

	needle := strings.ToLower(strings.TrimSpace(snippet))

	// 1. 子串包含，首个命中胜出
	for _, sentence := range sentences {
		if strings.Contains(strings.ToLower(strings.TrimSpace(sentence.Text)), needle) {
			return FormatTimestamp(sentence.Start)
		}
	}

	// 2. 词重叠得分
	snippetWords := strings.Fields(needle)
	if len(snippetWords) == 0 {
		return unmatched()
	}

	bestIndex := -1
	bestScore := 0.0
	for i, sentence := range sentences {
		words := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(strings.TrimSpace(sentence.Text))) {
			words[w] = struct{}{}
		}

		matched := 0
		for _, w := range snippetWords {
			if _, ok := words[w]; ok {
				matched++
			}
		}

		score := float64(matched) / float64(len(snippetWords))
		if score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}

	if bestIndex < 0 || bestScore <= MatchThreshold {
		return unmatched()
	}
	return FormatTimestamp(sentences[bestIndex].Start)
}

// FormatTimestamp 毫秒转为 M:SS，超过一小时为 H:MM:SS
func FormatTimestamp(ms int64) models.TimestampMatch {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	var formatted string
	if hours > 0 {
		formatted = fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	} else {
		formatted = fmt.Sprintf("%d:%02d", minutes, seconds)
	}

	return models.TimestampMatch{Seconds: totalSeconds, Formatted: formatted}
}

// FindSpeakerAtTimestamp 返回覆盖该时刻的首个发言人
func FindSpeakerAtTimestamp(ms int64, utterances []models.Utterance) *string {
	for _, u := range utterances {
		if u.Start <= ms && ms <= u.End {
			speaker := u.Speaker
			return &speaker
		}
	}
	return nil
}

// AlignHighlights 为每条高光写入时间与发言人，覆盖模型给出的值
func AlignHighlights(highlights []models.Highlight, sentences []models.Sentence, utterances []models.Utterance) []models.Highlight {
	aligned := make([]models.Highlight, len(highlights))
	for i, h := range highlights {
		text := h.Snippet
		if text == "" {
			text = h.Text
		}

		match := FindTimestampForText(text, sentences)
		h.Timestamp = match.Formatted
		h.TimestampSeconds = match.Seconds
		h.Speaker = FindSpeakerAtTimestamp(match.Seconds*1000, utterances)
		aligned[i] = h
	}
	return aligned
}

// AlignKeyInsights TL;DR 要点按相同规则对齐
func AlignKeyInsights(insights []models.KeyInsight, sentences []models.Sentence) []models.KeyInsight {
	aligned := make([]models.KeyInsight, len(insights))
	for i, insight := range insights {
		text := insight.Snippet
		if text == "" {
			text = insight.Insight
		}
		insight.Timestamp = FindTimestampForText(text, sentences).Formatted
		aligned[i] = insight
	}
	return aligned
}
