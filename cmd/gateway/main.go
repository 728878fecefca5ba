package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/bujia-iot/iot-dotmatrix/internal/adapter/http"
	"github.com/bujia-iot/iot-dotmatrix/internal/app"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/internal/ports"
)

var configFile = flag.String("config", "configs/gateway.yaml", "配置文件路径")

func main() {
	flag.Parse()

	// 加载配置文件
	if err := config.Load(*configFile); err != nil {
		fmt.Printf("加载配置文件失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GetConfig()

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("初始化日志系统失败: %v\n", err)
		os.Exit(1)
	}
	logger.Info("点阵屏网关 (DotMatrix Gateway) 启动中...")

	serviceManager := app.NewServiceManager(cfg)
	if err := serviceManager.Init(); err != nil {
		logger.Errorf("初始化服务管理器失败: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handlers := httpadapter.NewHandlerContext(
		serviceManager.Gateway,
		time.Duration(cfg.HTTPAPIServer.TimeoutSeconds)*time.Second,
		int64(cfg.HTTPAPIServer.MaxUploadMB)<<20,
	)
	server := ports.NewHTTPServer(cfg.HTTPAPIServer, handlers)

	// 阻塞直到收到退出信号
	if err := server.Start(ctx); err != nil {
		logger.Errorf("HTTP API服务器异常退出: %v", err)
	}

	logger.Info("正在关闭网关...")
	if err := serviceManager.Shutdown(); err != nil {
		logger.Warnf("关闭服务时出现错误: %v", err)
	}
	logger.Info("网关已关闭")
}
