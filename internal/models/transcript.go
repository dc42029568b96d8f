// internal/models/transcript.go
package models

// Sentence 带时间码的转写句子，时间单位为毫秒
type Sentence struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Utterance 某位说话人的连续发言区间
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text,omitempty"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Chapter 转写服务自动生成的章节
type Chapter struct {
	Headline string `json:"headline"`
	Gist     string `json:"gist,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// SpeakerStat 说话人发言统计
type SpeakerStat struct {
	Speaker        string  `json:"speaker"`
	UtteranceCount int     `json:"utteranceCount"`
	TotalMs        int64   `json:"totalMs"`
	Percentage     float64 `json:"percentage"`
}

// Transcript 转写结果，生成后不再修改
type Transcript struct {
	ID           string        `json:"id,omitempty"`
	Text         string        `json:"text"`
	Chapters     []Chapter     `json:"chapters"`
	Sentences    []Sentence    `json:"sentences"`
	Utterances   []Utterance   `json:"utterances"`
	SpeakerStats []SpeakerStat `json:"speakerStats"`
	Duration     float64       `json:"duration"` // 秒
}
