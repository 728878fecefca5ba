package ports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpadapter "github.com/bujia-iot/iot-dotmatrix/internal/adapter/http"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter 创建Gin引擎并注册API路由
func NewRouter(h *httpadapter.HandlerContext) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = h.MaxUploadBytes

	registerHTTPHandlers(r, h)
	return r
}

// requestLogger 用logrus记录每个请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Debug("HTTP请求")
	}
}

// registerHTTPHandlers 注册HTTP处理器
func registerHTTPHandlers(r *gin.Engine, h *httpadapter.HandlerContext) {
	r.GET("/health", h.HandleHealthCheck)

	// 调试API：显示所有路由
	r.GET("/routes", func(c *gin.Context) {
		var routes []httpadapter.RouteInfo
		for _, routeInfo := range r.Routes() {
			routes = append(routes, httpadapter.RouteInfo{
				Method: routeInfo.Method,
				Path:   routeInfo.Path,
			})
		}
		c.JSON(http.StatusOK, httpadapter.APIResponse{
			Code:    0,
			Message: "success",
			Data: httpadapter.RoutesResponse{
				Routes: routes,
				Count:  len(routes),
			},
		})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/metrics", h.HandleMetrics)
		api.GET("/displays", h.HandleDisplayList)
		api.POST("/displays/scan", h.HandleScan)

		// :address 为设备地址，default 表示配置的默认设备
		display := api.Group("/displays/:address")
		{
			display.GET("/status", h.HandleDisplayStatus)
			display.GET("/history", h.HandleHistory)
			display.POST("/disconnect", h.HandleDisconnect)

			display.POST("/image", h.HandleImage)
			display.POST("/gif", h.HandleGif)
			display.POST("/batch", h.HandleBatch)
			display.POST("/text", h.HandleText)

			display.POST("/draw-mode", h.HandleDrawMode)
			display.POST("/screen", h.HandleScreen)
			display.POST("/brightness", h.HandleBrightness)
			display.POST("/clock", h.HandleClock)
		}
	}
}

// HTTPServer HTTP API服务器
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer 按配置创建HTTP API服务器
func NewHTTPServer(cfg config.HTTPAPIServerConfig, h *httpadapter.HandlerContext) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	return &HTTPServer{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start 启动HTTP服务器，直到ctx取消后优雅关闭
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API服务器启动在 %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭HTTP服务器失败: %w", err)
	}
	logger.Info("HTTP API服务器已关闭")
	return nil
}
