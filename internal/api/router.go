// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter(handler *Handler, debugMode bool) *gin.Engine {
	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(handler.Logger, handler.Metrics))

	// 启用CORS
	r.Use(corsMiddleware())

	// WebSocket 进度推送
	r.GET("/ws/progress/:taskID", handler.ProgressWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(handler.limiter.DefaultRateLimit())
	{
		api.GET("/health", handler.Health)
		api.GET("/providers", handler.GetProviders)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/usage", handler.GetUsage)

		// ===============================
		// 处理相关路由
		// ===============================
		api.POST("/process-podcast", handler.limiter.ProcessingRateLimit(), handler.ProcessPodcast)

		jobsGroup := api.Group("/jobs")
		{
			jobsGroup.POST("", handler.limiter.ProcessingRateLimit(), handler.CreateJob)
			jobsGroup.GET("/:taskID", handler.GetJob)
		}

		// 进度
		api.GET("/progress/:taskID", handler.SubscribeProgress)

		// ===============================
		// 历史结果
		// ===============================
		episodesGroup := api.Group("/episodes")
		{
			episodesGroup.GET("", handler.ListEpisodes)
			episodesGroup.GET("/:id", handler.GetEpisode)
			episodesGroup.DELETE("/:id", handler.DeleteEpisode)
			episodesGroup.GET("/:id/chapters.vtt", handler.GetEpisodeChapters)
		}
	}

	return r
}
