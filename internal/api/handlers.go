// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/models"
	"github.com/Corphon/PodcastDigest/internal/platform"
	"github.com/Corphon/PodcastDigest/internal/services"
	"github.com/Corphon/PodcastDigest/internal/storage"
	"github.com/Corphon/PodcastDigest/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultEpisodeLimit = 20
	maxEpisodeLimit     = 100
	sseHeartbeat        = 15 * time.Second
)

// Dependencies 处理器所需的服务
type Dependencies struct {
	Podcasts *services.PodcastService
	Analysis *services.AnalysisService
	Progress *services.ProgressService
	Episodes storage.EpisodeStore
	Usage    *services.UsageService // 可为 nil
	Logger   *utils.Logger
	Metrics  *utils.PipelineMetrics
}

// Handler 处理API请求
type Handler struct {
	Podcasts *services.PodcastService  // 处理流水线
	Analysis *services.AnalysisService // 提供者状态
	Progress *services.ProgressService // 进度跟踪服务
	Episodes storage.EpisodeStore      // 历史结果
	Usage    *services.UsageService    // 用量统计
	Logger   *utils.Logger
	Metrics  *utils.PipelineMetrics
	Response *ResponseHelper // 响应助手

	limiter  *RateLimiter
	validate *validator.Validate

	// 后台任务随服务关闭而取消
	jobCtx    context.Context
	cancelJob context.CancelFunc
	jobs      sync.WaitGroup
}

// NewHandler 创建处理器
func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Podcasts == nil || deps.Analysis == nil || deps.Progress == nil {
		return nil, fmt.Errorf("podcast, analysis and progress services are required")
	}
	if deps.Episodes == nil {
		deps.Episodes = storage.NopEpisodeStore{}
	}
	if deps.Logger == nil {
		deps.Logger = utils.GetLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = utils.NewPipelineMetrics(nil, deps.Logger)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	return &Handler{
		Podcasts:  deps.Podcasts,
		Analysis:  deps.Analysis,
		Progress:  deps.Progress,
		Episodes:  deps.Episodes,
		Usage:     deps.Usage,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
		Response:  NewResponseHelper(),
		limiter:   NewRateLimiter(),
		validate:  validator.New(),
		jobCtx:    jobCtx,
		cancelJob: cancel,
	}, nil
}

// Close 取消未完成的后台任务并等待其退出
func (h *Handler) Close(ctx context.Context) error {
	h.cancelJob()
	h.limiter.Stop()

	done := make(chan struct{})
	go func() {
		h.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Podcast Summarizer API is running",
	})
}

// GetProviders 各LLM提供者的可用状态
func (h *Handler) GetProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.Analysis.ProviderStatus(c.Request.Context()),
	})
}

// bindProcessRequest 解析并校验请求体，失败时已写出响应
func (h *Handler) bindProcessRequest(c *gin.Context) (models.ProcessRequest, bool) {
	var req models.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Podcast URL is required", err.Error())
		return req, false
	}
	req.PodcastURL = strings.TrimSpace(req.PodcastURL)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))

	if err := h.validate.Struct(req); err != nil {
		h.Response.BadRequest(c, "Invalid request", describeValidation(err))
		return req, false
	}
	return req, true
}

// describeValidation 将校验错误整理为字段列表
func describeValidation(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fieldErr.Field(), fieldErr.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ProcessPodcast 同步处理，直接返回结果
func (h *Handler) ProcessPodcast(c *gin.Context) {
	req, ok := h.bindProcessRequest(c)
	if !ok {
		return
	}

	result, err := h.Podcasts.Process(c.Request.Context(), req, nil)
	if err != nil {
		h.Logger.Error("Podcast processing failed", map[string]interface{}{
			"podcast_url": req.PodcastURL,
			"provider":    req.Provider,
			"kind":        apperrors.TypeOf(err),
			"error":       err.Error(),
			"request_id":  c.GetString(requestIDKey),
		})
		h.Response.AppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateJob 后台处理，通过 SSE 或 WebSocket 获取进度
func (h *Handler) CreateJob(c *gin.Context) {
	req, ok := h.bindProcessRequest(c)
	if !ok {
		return
	}

	taskID := uuid.NewString()
	tracker := h.Progress.CreateTracker(taskID)

	h.jobs.Add(1)
	h.Metrics.JobStarted()
	go h.runJob(taskID, tracker, req)

	c.JSON(http.StatusAccepted, gin.H{
		"taskId":       taskID,
		"progressUrl":  "/api/progress/" + taskID,
		"websocketUrl": "/ws/progress/" + taskID,
	})
}

func (h *Handler) runJob(taskID string, tracker *services.ProgressTracker, req models.ProcessRequest) {
	defer h.jobs.Done()
	defer h.Metrics.JobFinished()

	result, err := h.Podcasts.Process(h.jobCtx, req, tracker)
	if err != nil {
		h.Logger.Error("Background job failed", map[string]interface{}{
			"task_id": taskID,
			"kind":    apperrors.TypeOf(err),
			"error":   err.Error(),
		})
		tracker.Fail(CodeForError(apperrors.TypeOf(err)), sanitizeErrorMessage(err.Error()))
		return
	}

	h.Logger.Info("Background job completed", map[string]interface{}{
		"task_id":    taskID,
		"episode_id": result.ID,
		"provider":   result.LLMProvider.Provider,
	})
	tracker.Complete(result.ID, "")
}

// GetJob 任务当前状态
func (h *Handler) GetJob(c *gin.Context) {
	tracker, exists := h.Progress.GetTracker(c.Param("taskID"))
	if !exists {
		h.Response.NotFound(c, "任务")
		return
	}
	h.Response.Success(c, tracker.Snapshot())
}

// SubscribeProgress 订阅任务进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, "任务")
		return
	}

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()

	// 订阅时立即收到当前状态
	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}
			data, _ := json.Marshal(update)
			fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", data)
			c.Writer.Flush()

			if update.Status == services.StatusCompleted || update.Status == services.StatusFailed {
				return
			}
		case <-ticker.C:
			// 心跳保持连接
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// ListEpisodes 最近处理过的节目
func (h *Handler) ListEpisodes(c *gin.Context) {
	limit := defaultEpisodeLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.Response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxEpisodeLimit)
	}

	episodes, err := h.Episodes.List(c.Request.Context(), limit)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"episodes": episodes,
		"count":    len(episodes),
	})
}

// GetEpisode 读取一条完整结果
func (h *Handler) GetEpisode(c *gin.Context) {
	result, err := h.Episodes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteEpisode 删除一条历史结果
func (h *Handler) DeleteEpisode(c *gin.Context) {
	id := c.Param("id")
	if err := h.Episodes.Delete(c.Request.Context(), id); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Logger.Info("Episode deleted", map[string]interface{}{
		"episode_id": id,
		"request_id": c.GetString(requestIDKey),
	})
	h.Response.Success(c, gin.H{"id": id}, "节目已删除")
}

// GetEpisodeChapters 以 WebVTT 导出章节
func (h *Handler) GetEpisodeChapters(c *gin.Context) {
	id := c.Param("id")
	result, err := h.Episodes.Get(c.Request.Context(), id)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	if len(result.Chapters) == 0 {
		h.Response.Error(c, http.StatusNotFound, ErrorNotFound, "episode has no chapters")
		return
	}

	h.Response.FileResponse(c, platform.ChapterVTT(result.Chapters), id+".vtt", "text/vtt; charset=utf-8")
}

// GetMetrics 指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.Metrics.Collector().GetMetrics())
}

// GetUsage 处理量与花费统计
func (h *Handler) GetUsage(c *gin.Context) {
	if h.Usage == nil {
		h.Response.Error(c, http.StatusNotFound, ErrorNotFound, "usage tracking is disabled")
		return
	}
	h.Response.Success(c, h.Usage.GetUsageStats())
}
