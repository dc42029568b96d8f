// internal/services/usage_service.go
package services

import (
	"errors"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/storage"
	"github.com/Corphon/PodcastDigest/internal/utils"
)

const (
	usageDir  = "stats"
	usageFile = "usage_stats.json"
)

// UsageRecorder 流水线完成后记录用量
type UsageRecorder interface {
	RecordEpisode(provider string, usage models.Usage, cost float64)
}

// UsageStats 处理量与模型花费统计
type UsageStats struct {
	TodayEpisodes     int            `json:"today_episodes"`
	MonthlyTokens     int            `json:"monthly_tokens"`
	MonthlyCost       float64        `json:"monthly_cost"`
	DailyEpisodes     map[string]int `json:"daily_episodes"`      // 日期 -> 处理数
	MonthlyByProvider map[string]int `json:"monthly_by_provider"` // 提供者 -> 本月 token
	ProviderEpisodes  map[string]int `json:"provider_episodes"`   // 提供者 -> 累计处理数
	LastUpdated       time.Time      `json:"last_updated"`
}

// UsageService 持久化的用量统计
type UsageService struct {
	files  *storage.FileStorage
	logger *utils.Logger
	mutex  sync.Mutex
	stats  *UsageStats
	now    func() time.Time

	// 批量保存控制
	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewUsageService 统计文件位于 dataDir/stats 下
func NewUsageService(dataDir string, logger *utils.Logger) (*UsageService, error) {
	files, err := storage.NewFileStorage(dataDir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	s := &UsageService{
		files:        files,
		logger:       logger,
		now:          time.Now,
		saveInterval: 30 * time.Second,
		stop:         make(chan struct{}),
	}
	s.stats = s.loadStats()
	s.startPeriodicSave()
	return s, nil
}

func newUsageStats(now time.Time) *UsageStats {
	return &UsageStats{
		DailyEpisodes:     make(map[string]int),
		MonthlyByProvider: make(map[string]int),
		ProviderEpisodes:  make(map[string]int),
		LastUpdated:       now,
	}
}

// loadStats 文件不存在或损坏时从零开始
func (s *UsageService) loadStats() *UsageStats {
	var stats UsageStats
	if err := s.files.LoadJSONFile(usageDir, usageFile, &stats); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to load usage stats, starting fresh", map[string]interface{}{"error": err.Error()})
		}
		return newUsageStats(s.now())
	}

	if stats.DailyEpisodes == nil {
		stats.DailyEpisodes = make(map[string]int)
	}
	if stats.MonthlyByProvider == nil {
		stats.MonthlyByProvider = make(map[string]int)
	}
	if stats.ProviderEpisodes == nil {
		stats.ProviderEpisodes = make(map[string]int)
	}
	return &stats
}

// rollPeriod 跨日/跨月时重置对应计数；调用方持有锁
func (s *UsageService) rollPeriod(now time.Time) {
	last := s.stats.LastUpdated
	if now.Format("2006-01-02") != last.Format("2006-01-02") {
		s.stats.TodayEpisodes = 0
		s.isDirty = true
	}
	if now.Format("2006-01") != last.Format("2006-01") {
		s.stats.MonthlyTokens = 0
		s.stats.MonthlyCost = 0
		s.stats.MonthlyByProvider = make(map[string]int)
		s.isDirty = true
	}
}

// RecordEpisode 记录一次成功处理
func (s *UsageService) RecordEpisode(provider string, usage models.Usage, cost float64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	s.rollPeriod(now)

	s.stats.TodayEpisodes++
	s.stats.DailyEpisodes[now.Format("2006-01-02")]++
	s.stats.ProviderEpisodes[provider]++
	s.stats.MonthlyTokens += usage.TotalTokens
	s.stats.MonthlyByProvider[provider] += usage.TotalTokens
	s.stats.MonthlyCost += cost
	s.stats.LastUpdated = now
	s.isDirty = true

	if now.Sub(s.lastSaveTime) > s.saveInterval {
		if err := s.saveStatsImmediate(); err != nil {
			s.logger.Warn("Failed to save usage stats", map[string]interface{}{"error": err.Error()})
		}
	}
}

// GetUsageStats 返回副本
func (s *UsageService) GetUsageStats() *UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	s.rollPeriod(now)
	s.stats.LastUpdated = now

	return &UsageStats{
		TodayEpisodes:     s.stats.TodayEpisodes,
		MonthlyTokens:     s.stats.MonthlyTokens,
		MonthlyCost:       s.stats.MonthlyCost,
		DailyEpisodes:     maps.Clone(s.stats.DailyEpisodes),
		MonthlyByProvider: maps.Clone(s.stats.MonthlyByProvider),
		ProviderEpisodes:  maps.Clone(s.stats.ProviderEpisodes),
		LastUpdated:       s.stats.LastUpdated,
	}
}

// saveStatsImmediate 调用方持有锁
func (s *UsageService) saveStatsImmediate() error {
	if !s.isDirty {
		return nil
	}

	if err := s.files.SaveJSONFile(usageDir, usageFile, s.stats); err != nil {
		return err
	}
	s.isDirty = false
	s.lastSaveTime = s.now()
	return nil
}

// 定时保存机制
func (s *UsageService) startPeriodicSave() {
	go func() {
		ticker := time.NewTicker(s.saveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mutex.Lock()
				if err := s.saveStatsImmediate(); err != nil {
					s.logger.Warn("Periodic usage save failed", map[string]interface{}{"error": err.Error()})
				}
				s.mutex.Unlock()
			}
		}
	}()
}

// Close 停止定时保存并写出未保存的数据
func (s *UsageService) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saveStatsImmediate()
}
