package http

import (
	"context"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/pkg/gateway"
	"github.com/bujia-iot/iot-dotmatrix/pkg/network"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/bujia-iot/iot-dotmatrix/pkg/storage"
)

// DisplayService HTTP处理器依赖的显示屏网关接口
type DisplayService interface {
	SendImage(ctx context.Context, address string, data []byte) (*gateway.UploadResult, error)
	SendImageRaw(ctx context.Context, address string, data []byte) (*gateway.UploadResult, error)
	SendGif(ctx context.Context, address string, data []byte) (*gateway.UploadResult, error)
	SendGifRaw(ctx context.Context, address string, data []byte) (*gateway.UploadResult, error)
	UploadBatch(ctx context.Context, address string, files [][]byte, raw bool) (*gateway.UploadResult, error)
	SendText(ctx context.Context, address string, opts gateway.TextOptions) (*gateway.UploadResult, error)
	SetDrawMode(ctx context.Context, address string, mode uint8) error
	SetScreen(ctx context.Context, address string, on bool) error
	SetBrightness(ctx context.Context, address string, percent int) error
	ShowClock(ctx context.Context, address string, opts protocol.ClockOptions) error
	Scan(ctx context.Context) ([]network.Advertisement, error)
	Disconnect(address string) error
	Status(address string) (*gateway.LinkStatus, error)
	Displays() []*storage.DisplayInfo
	Journal() storage.Journal
	TextDefaults() gateway.TextOptions
}

// HandlerContext HTTP处理器上下文，依赖由HTTP服务器初始化时注入
type HandlerContext struct {
	Displays       DisplayService
	RequestTimeout time.Duration
	MaxUploadBytes int64
	StartedAt      time.Time
	Version        string
}

// NewHandlerContext 创建处理器上下文
func NewHandlerContext(displays DisplayService, timeout time.Duration, maxUploadBytes int64) *HandlerContext {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 8 << 20
	}
	return &HandlerContext{
		Displays:       displays,
		RequestTimeout: timeout,
		MaxUploadBytes: maxUploadBytes,
		StartedAt:      time.Now(),
		Version:        "1.0.0",
	}
}
