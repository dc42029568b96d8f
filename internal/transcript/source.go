// internal/transcript/source.go
package transcript

import (
	"context"
	"math"
	"time"

	"github.com/Corphon/PodcastDigest/internal/models"
)

// Source 根据音频地址返回带时间码的转录
type Source interface {
	Extract(ctx context.Context, audioURL string) (*models.Transcript, error)
}

// PollPolicy 轮询策略：按倍数退避，直到总时限
type PollPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	Timeout     time.Duration
}

// DefaultPollPolicy 1秒起步，最长5秒间隔，总时限5分钟
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		MaxInterval: 5 * time.Second,
		Multiplier:  1.5,
		Timeout:     5 * time.Minute,
	}
}

// next 计算下一次等待时长
func (p PollPolicy) next(current time.Duration) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	next := time.Duration(float64(current) * multiplier)
	if p.MaxInterval > 0 && next > p.MaxInterval {
		next = p.MaxInterval
	}
	return next
}

// sleep 等待或随 ctx 取消提前返回
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SpeakerStats 按发言人汇总发言次数与时长，顺序为首次出现顺序
func SpeakerStats(utterances []models.Utterance) []models.SpeakerStat {
	stats := make([]models.SpeakerStat, 0)
	index := make(map[string]int)
	var total int64

	for _, u := range utterances {
		duration := u.End - u.Start
		if duration < 0 {
			duration = 0
		}
		i, ok := index[u.Speaker]
		if !ok {
			i = len(stats)
			index[u.Speaker] = i
			stats = append(stats, models.SpeakerStat{Speaker: u.Speaker})
		}
		stats[i].UtteranceCount++
		stats[i].TotalMs += duration
		total += duration
	}

	if total > 0 {
		for i := range stats {
			pct := float64(stats[i].TotalMs) / float64(total) * 100
			stats[i].Percentage = math.Round(pct*10) / 10
		}
	}
	return stats
}
