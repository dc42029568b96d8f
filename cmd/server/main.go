// cmd/server/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Corphon/PodcastDigest/internal/app"
	"github.com/Corphon/PodcastDigest/internal/config"
	"github.com/Corphon/PodcastDigest/internal/utils"
)

func main() {
	log.Println("🚀 启动 PodcastDigest 服务器...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 配置加载完成，端口: %s", cfg.Port)

	// 2. 日志
	if err := utils.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger := utils.GetLogger()
	defer logger.Close()

	// 3. 等待中断信号以进行优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 初始化所有服务（按依赖顺序）
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 健康检查: http://localhost:%s/api/health", cfg.Port)

	if err := application.Run(ctx); err != nil {
		logger.Error("Server stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.Println("✅ 服务器优雅关闭完成")
}
