// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"
)

// 任务状态
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// 流水线阶段
const (
	StageQueued       = "queued"
	StageResolving    = "resolving"
	StageTranscribing = "transcribing"
	StageAnalyzing    = "analyzing"
	StageSaving       = "saving"
	StageDone         = "done"
)

// ProgressReporter 流水线向外报告进度
type ProgressReporter interface {
	Report(stage string, progress int, message string)
}

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	TaskID    string `json:"taskId"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress"` // 进度百分比 (0-100)
	Message   string `json:"message"`
	Status    string `json:"status"` // running, completed, failed
	EpisodeID string `json:"episodeId,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// ProgressTracker 跟踪一次处理任务的进度
type ProgressTracker struct {
	TaskID      string
	Stage       string
	Progress    int
	Message     string
	Status      string
	EpisodeID   string
	ErrorCode   string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker 创建新的进度跟踪器，已存在时返回现有追踪器
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		Stage:       StageQueued,
		Message:     "Queued",
		Status:      StatusRunning,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}

	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// Report 实现 ProgressReporter，进度只增不减
func (t *ProgressTracker) Report(stage string, progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	if stage != "" {
		t.Stage = stage
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcast()
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(episodeID, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	t.Progress = 100
	t.Stage = StageDone
	t.EpisodeID = episodeID
	if message == "" {
		message = "Processing completed"
	}
	t.Message = message
	t.Status = StatusCompleted
	t.UpdateTime = time.Now()

	t.broadcast()
	close(t.Done)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(code, errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != StatusRunning {
		return
	}
	t.Message = fmt.Sprintf("Processing failed: %s", errorMsg)
	t.ErrorCode = code
	t.Status = StatusFailed
	t.UpdateTime = time.Now()

	t.broadcast()
	close(t.Done)
}

// Snapshot 当前状态
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.update()
}

func (t *ProgressTracker) update() ProgressUpdate {
	return ProgressUpdate{
		TaskID:    t.TaskID,
		Stage:     t.Stage,
		Progress:  t.Progress,
		Message:   t.Message,
		Status:    t.Status,
		EpisodeID: t.EpisodeID,
		ErrorCode: t.ErrorCode,
	}
}

// broadcast 非阻塞通知订阅者，通道已满则跳过；调用方持有锁
func (t *ProgressTracker) broadcast() {
	update := t.update()
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

// Subscribe 订阅进度更新，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.Subscribers[subscriber] = true
	subscriber <- t.update()

	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.Subscribers[subscriber]; ok {
		delete(t.Subscribers, subscriber)
		close(subscriber)
	}
}

// CleanupCompletedTasks 清理已结束且超过 maxAge 的任务
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		finished := tracker.Status != StatusRunning
		isOld := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if finished && isOld {
			delete(s.trackers, id)
			removed++
		}
	}
	return removed
}
