// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/PodcastDigest/internal/api"
	"github.com/Corphon/PodcastDigest/internal/config"
	"github.com/Corphon/PodcastDigest/internal/di"
	"github.com/Corphon/PodcastDigest/internal/llm"
	"github.com/Corphon/PodcastDigest/internal/platform"
	"github.com/Corphon/PodcastDigest/internal/services"
	"github.com/Corphon/PodcastDigest/internal/storage"
	"github.com/Corphon/PodcastDigest/internal/transcript"
	"github.com/Corphon/PodcastDigest/internal/utils"
	"github.com/gin-gonic/gin"

	// 注册LLM提供者
	_ "github.com/Corphon/PodcastDigest/internal/llm/providers/anthropic"
	_ "github.com/Corphon/PodcastDigest/internal/llm/providers/google"
	_ "github.com/Corphon/PodcastDigest/internal/llm/providers/groq"
	_ "github.com/Corphon/PodcastDigest/internal/llm/providers/ollama"
)

const (
	// 已结束任务的保留时间与清理周期
	taskRetention   = time.Hour
	cleanupInterval = 10 * time.Minute

	resolverTimeout = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// 容器中的服务名
const (
	serviceConfig     = "config"
	serviceLogger     = "logger"
	serviceMetrics    = "metrics"
	serviceRegistry   = "llm"
	serviceStore      = "store"
	serviceAnalysis   = "analysis"
	servicePodcast    = "podcast"
	serviceProgress   = "progress"
	serviceResolver   = "resolver"
	serviceTranscript = "transcript"
	serviceUsage      = "usage"
)

// App 持有进程内的全部服务
type App struct {
	config    *config.Config
	logger    *utils.Logger
	container *di.Container
	handler   *api.Handler
	router    *gin.Engine
	server    *http.Server
}

// New 按依赖顺序初始化服务并构建路由
func New(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	container := di.NewContainer()
	if err := initServices(ctx, container, cfg, logger); err != nil {
		return nil, err
	}

	deps, err := resolveDependencies(container)
	if err != nil {
		return nil, err
	}
	handler, err := api.NewHandler(deps)
	if err != nil {
		return nil, fmt.Errorf("创建处理器失败: %w", err)
	}

	router := api.SetupRouter(handler, cfg.DebugMode)
	logger.Info("Application initialized", map[string]interface{}{
		"services":      container.GetNames(),
		"store_backend": cfg.StoreBackend,
		"debug":         cfg.DebugMode,
	})

	return &App{
		config:    cfg,
		logger:    logger,
		container: container,
		handler:   handler,
		router:    router,
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// initServices 注册顺序即依赖顺序
func initServices(ctx context.Context, container *di.Container, cfg *config.Config, logger *utils.Logger) error {
	container.Register(serviceConfig, cfg)
	container.Register(serviceLogger, logger)

	metrics := utils.NewPipelineMetrics(utils.NewMetricsCollector(), logger)
	container.Register(serviceMetrics, metrics)

	registry, err := llm.NewRegistry(cfg.LLMProviderConfigs())
	if err != nil {
		return fmt.Errorf("初始化LLM提供者失败: %w", err)
	}
	container.Register(serviceRegistry, registry)
	var unconfigured []string
	for _, name := range llm.ListProviders() {
		if provider, err := registry.Get(name); err == nil && !provider.IsConfigured() {
			unconfigured = append(unconfigured, name)
		}
	}
	logger.Info("LLM providers registered", map[string]interface{}{
		"providers":      registry.Names(),
		"unconfigured":   unconfigured,
		"fallback_ready": cfg.HasAnyLLMCredential(),
	})

	store, err := storage.NewEpisodeStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化结果存储失败: %w", err)
	}
	container.Register(serviceStore, store)

	policy := transcript.PollPolicy{
		Interval:    cfg.TranscriptPollInterval,
		MaxInterval: cfg.TranscriptPollMaxInterval,
		Multiplier:  transcript.DefaultPollPolicy().Multiplier,
		Timeout:     cfg.TranscriptTimeout,
	}
	transcripts := transcript.NewAssemblyAIClient(cfg.AssemblyAIAPIKey, "", policy, logger)
	container.Register(serviceTranscript, transcripts)

	resolver := platform.NewResolver(resolverTimeout)
	container.Register(serviceResolver, resolver)

	analysis := services.NewAnalysisService(cfg, registry, logger, metrics)
	container.Register(serviceAnalysis, analysis)

	usage, err := services.NewUsageService(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("初始化用量统计失败: %w", err)
	}
	container.Register(serviceUsage, usage)

	podcasts := services.NewPodcastService(transcripts, resolver, analysis, store, logger, metrics)
	podcasts.SetUsageRecorder(usage)
	container.Register(servicePodcast, podcasts)
	container.Register(serviceProgress, services.NewProgressService())
	return nil
}

func resolveDependencies(container *di.Container) (api.Dependencies, error) {
	var deps api.Dependencies
	var err error

	if deps.Podcasts, err = di.Resolve[*services.PodcastService](container, servicePodcast); err != nil {
		return deps, err
	}
	if deps.Analysis, err = di.Resolve[*services.AnalysisService](container, serviceAnalysis); err != nil {
		return deps, err
	}
	if deps.Progress, err = di.Resolve[*services.ProgressService](container, serviceProgress); err != nil {
		return deps, err
	}
	if deps.Episodes, err = di.Resolve[storage.EpisodeStore](container, serviceStore); err != nil {
		return deps, err
	}
	if deps.Usage, err = di.Resolve[*services.UsageService](container, serviceUsage); err != nil {
		return deps, err
	}
	if deps.Logger, err = di.Resolve[*utils.Logger](container, serviceLogger); err != nil {
		return deps, err
	}
	if deps.Metrics, err = di.Resolve[*utils.PipelineMetrics](container, serviceMetrics); err != nil {
		return deps, err
	}
	return deps, nil
}

// Handler 供测试直接调用的路由
func (a *App) Handler() http.Handler {
	return a.router
}

// Container 已注册的服务
func (a *App) Container() *di.Container {
	return a.container
}

// Run 启动HTTP服务，ctx 取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Server listening", map[string]interface{}{"addr": a.server.Addr})
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	go a.cleanupLoop(ctx)

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			a.Shutdown(context.Background())
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// cleanupLoop 定期清理已结束的任务
func (a *App) cleanupLoop(ctx context.Context) {
	progress, err := di.Resolve[*services.ProgressService](a.container, serviceProgress)
	if err != nil {
		return
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := progress.CleanupCompletedTasks(taskRetention); removed > 0 {
				a.logger.Debug("Cleaned up finished tasks", map[string]interface{}{"removed": removed})
			}
		}
	}
}

// Shutdown 依次关闭HTTP服务、后台任务与存储
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down", nil)

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭HTTP服务失败: %w", err))
	}
	if err := a.handler.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("等待后台任务失败: %w", err))
	}
	if store, err := di.Resolve[storage.EpisodeStore](a.container, serviceStore); err == nil {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭存储失败: %w", err))
		}
	}
	if usage, err := di.Resolve[*services.UsageService](a.container, serviceUsage); err == nil {
		if err := usage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("保存用量统计失败: %w", err))
		}
	}
	return errors.Join(errs...)
}
