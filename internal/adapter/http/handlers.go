package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 路径中使用该地址表示配置的默认设备
const defaultAddressAlias = "default"

// addressParam 读取路径中的设备地址
func addressParam(c *gin.Context) string {
	address := c.Param("address")
	if address == defaultAddressAlias {
		return ""
	}
	return address
}

// requestContext 带超时的请求上下文，客户端断开时一并取消
func (h *HandlerContext) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.RequestTimeout)
}

// statusForError 错误码到HTTP状态码
func statusForError(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrInvalidParameter, apperrors.ErrEncodeFailed:
		return http.StatusBadRequest
	case apperrors.ErrDeviceUnavailable:
		return http.StatusNotFound
	case apperrors.ErrNotConnected:
		return http.StatusConflict
	case apperrors.ErrConnectFailed, apperrors.ErrWriteFailed, apperrors.ErrProtocolInvalidData:
		return http.StatusBadGateway
	case apperrors.ErrQueueFull:
		return http.StatusTooManyRequests
	case apperrors.ErrQueueClosed:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError 输出错误响应
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	code := apperrors.CodeOf(err)

	logger.WithFields(logrus.Fields{
		"path":      c.FullPath(),
		"address":   c.Param("address"),
		"code":      code.String(),
		"status":    status,
		"retryable": apperrors.IsRetryable(err),
		"error":     err.Error(),
	}).Warn("请求处理失败")

	c.JSON(status, APIResponse{
		Code:    int(code),
		Message: err.Error(),
		Data:    gin.H{"error": code.String(), "retryable": apperrors.IsRetryable(err)},
	})
}

// respondBadRequest 参数错误
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Code:    int(apperrors.ErrInvalidParameter),
		Message: message,
	})
}

// respondOK 成功响应
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Code: 0, Message: "success", Data: data})
}

// HandleHealthCheck 健康检查
// @Router /health [get]
func (h *HandlerContext) HandleHealthCheck(c *gin.Context) {
	respondOK(c, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.Version,
		Uptime:    time.Since(h.StartedAt).Truncate(time.Second).String(),
		Displays:  len(h.Displays.Displays()),
	})
}

// HandleMetrics 上传指标摘要
// @Router /api/v1/metrics [get]
func (h *HandlerContext) HandleMetrics(c *gin.Context) {
	respondOK(c, metrics.GetMetricsSummary())
}

// HandleDisplayList 已知显示屏列表
// @Router /api/v1/displays [get]
func (h *HandlerContext) HandleDisplayList(c *gin.Context) {
	displays := h.Displays.Displays()
	respondOK(c, gin.H{
		"displays": displays,
		"total":    len(displays),
	})
}

// HandleScan 扫描附近的显示屏
// @Router /api/v1/displays/scan [post]
func (h *HandlerContext) HandleScan(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ads, err := h.Displays.Scan(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"devices": ads,
		"total":   len(ads),
	})
}

// HandleDisplayStatus 链路与队列状态
// @Router /api/v1/displays/{address}/status [get]
func (h *HandlerContext) HandleDisplayStatus(c *gin.Context) {
	status, err := h.Displays.Status(addressParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, status)
}

// HandleHistory 上传历史
// @Router /api/v1/displays/{address}/history [get]
func (h *HandlerContext) HandleHistory(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondBadRequest(c, "limit必须为正整数")
			return
		}
		limit = n
	}

	status, err := h.Displays.Status(addressParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	address := status.Link.Address

	ctx, cancel := h.requestContext(c)
	defer cancel()
	records, err := h.Displays.Journal().History(ctx, address, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"address": address,
		"records": records,
		"total":   len(records),
	})
}

// HandleDisconnect 断开显示屏
// @Router /api/v1/displays/{address}/disconnect [post]
func (h *HandlerContext) HandleDisconnect(c *gin.Context) {
	if err := h.Displays.Disconnect(addressParam(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
