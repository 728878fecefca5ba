// Package gateway 显示屏网关：面向宿主的统一接口
//
// 每个显示屏地址对应一条链路（连接管理器 + 上传队列）。内容先在调用方协程中编码，
// 再提交到该链路的队列，由唯一的工作协程串行写出。
package gateway

import (
	"strings"
	"sync"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	"github.com/bujia-iot/iot-dotmatrix/pkg/encoder"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/metrics"
	"github.com/bujia-iot/iot-dotmatrix/pkg/network"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/bujia-iot/iot-dotmatrix/pkg/storage"
	"github.com/sirupsen/logrus"
)

// TextOptions 文字渲染参数
type TextOptions struct {
	Text         string
	Font         string
	FontSize     float64
	Spacing      int
	Proportional bool
	Compact      bool
	Style        protocol.TextStyle
}

// Options 网关参数
type Options struct {
	DefaultAddress string
	NamePrefix     string
	PixelSize      int
	ChunkSize      int
	Interval       uint8
	ControlPause   time.Duration
	FilePause      time.Duration
	QueueSize      int
	JobTimeout     time.Duration
	Manager        network.ManagerOptions
	Text           TextOptions
	Fonts          *encoder.FontResolver
	Journal        storage.Journal
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		NamePrefix:   constants.DeviceNamePrefix,
		PixelSize:    constants.PixelSizeLarge,
		ChunkSize:    constants.DefaultChunkSize,
		Interval:     constants.DefaultInterval,
		ControlPause: constants.BatchControlPause,
		FilePause:    constants.BatchFilePause,
		QueueSize:    16,
		JobTimeout:   2 * time.Minute,
		Manager:      network.DefaultManagerOptions(),
		Text: TextOptions{
			FontSize:     16,
			Proportional: true,
			Style:        protocol.DefaultTextStyle(),
		},
	}
}

// OptionsFromConfig 由配置生成网关参数，Journal需调用方另行设置
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.DefaultAddress = cfg.Device.Address
	if cfg.Device.NamePrefix != "" {
		opts.NamePrefix = cfg.Device.NamePrefix
	}
	opts.PixelSize = cfg.Device.PixelSize
	opts.ChunkSize = cfg.Upload.ChunkSize
	opts.Interval = uint8(cfg.Upload.IntervalSeconds)
	opts.ControlPause = time.Duration(cfg.Upload.BatchControlPauseMs) * time.Millisecond
	opts.FilePause = time.Duration(cfg.Upload.BatchFilePauseMs) * time.Millisecond
	opts.QueueSize = cfg.Upload.QueueSize
	opts.JobTimeout = time.Duration(cfg.Upload.JobTimeoutSeconds) * time.Second
	opts.Manager = network.OptionsFromConfig(cfg.Transport, opts.NamePrefix)

	opts.Text = TextOptions{
		Font:         cfg.Text.Font,
		FontSize:     float64(cfg.Text.FontSize),
		Spacing:      cfg.Text.Spacing,
		Proportional: cfg.Text.Proportional,
		Compact:      cfg.Text.Compact,
		Style: protocol.TextStyle{
			AnimationMode: uint8(cfg.Text.AnimationMode),
			Speed:         uint8(cfg.Text.Speed),
			ColorMode:     uint8(cfg.Text.ColorMode),
			Color:         protocol.ParseRGB(cfg.Text.Color),
			BgMode:        uint8(cfg.Text.BgMode),
			BgColor:       protocol.ParseRGB(cfg.Text.BgColor),
		},
	}
	opts.Fonts = encoder.NewFontResolver(cfg.Text.FontsDir, cfg.Text.Font)
	return opts
}

// deviceLink 一个显示屏的连接与上传队列
type deviceLink struct {
	manager *network.ConnectionManager
	queue   *network.UploadQueue
}

// LinkStatus 链路状态快照
type LinkStatus struct {
	Link  network.LinkStats  `json:"link"`
	Queue network.QueueStats `json:"queue"`
}

// DisplayGateway 显示屏网关
type DisplayGateway struct {
	transport network.Transport
	opts      Options
	store     *storage.DisplayStore
	journal   storage.Journal

	mu     sync.Mutex
	links  map[string]*deviceLink
	closed bool
}

// NewDisplayGateway 创建网关，transport由调用方创建（BLE或内存）
func NewDisplayGateway(transport network.Transport, opts Options) *DisplayGateway {
	if opts.PixelSize != constants.PixelSizeSmall && opts.PixelSize != constants.PixelSizeLarge {
		opts.PixelSize = constants.PixelSizeLarge
	}
	journal := opts.Journal
	if journal == nil {
		journal = storage.NewMemoryJournal(storage.DefaultMaxHistory)
	}
	return &DisplayGateway{
		transport: transport,
		opts:      opts,
		store:     storage.NewDisplayStore(),
		journal:   journal,
		links:     make(map[string]*deviceLink),
	}
}

// TextDefaults 返回配置中的文字默认参数
func (g *DisplayGateway) TextDefaults() TextOptions {
	return g.opts.Text
}

// Store 显示屏信息存储
func (g *DisplayGateway) Store() *storage.DisplayStore {
	return g.store
}

// Journal 上传日志
func (g *DisplayGateway) Journal() storage.Journal {
	return g.journal
}

// resolveAddress 空地址使用默认设备
func (g *DisplayGateway) resolveAddress(address string) (string, error) {
	address = strings.ToUpper(strings.TrimSpace(address))
	if address == "" {
		address = strings.ToUpper(strings.TrimSpace(g.opts.DefaultAddress))
	}
	if address == "" {
		return "", apperrors.New(apperrors.ErrInvalidParameter, "未指定设备地址且没有配置默认设备")
	}
	return address, nil
}

// link 获取或创建某地址的链路
func (g *DisplayGateway) link(address string) (*deviceLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, apperrors.New(apperrors.ErrQueueClosed, "网关已关闭")
	}
	if l, ok := g.links[address]; ok {
		return l, nil
	}

	manager := network.NewConnectionManager(g.transport, g.opts.Manager)
	manager.SetOnStateChange(g.onStateChange)
	queue := network.NewUploadQueue(manager, g.opts.QueueSize, g.opts.JobTimeout)
	queue.Start()

	l := &deviceLink{manager: manager, queue: queue}
	g.links[address] = l
	g.store.GetOrCreate(address, "")

	logger.WithFields(logrus.Fields{
		"address":   address,
		"queueSize": g.opts.QueueSize,
	}).Info("创建显示屏链路")
	return l, nil
}

// existingLink 获取已存在的链路
func (g *DisplayGateway) existingLink(address string) (*deviceLink, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.links[address]
	return l, ok
}

func (g *DisplayGateway) onStateChange(address string, state constants.ConnectionState) {
	display := g.store.GetOrCreate(address, "")
	display.SetState(state)
	metrics.SetConnectionCount(uint64(g.store.CountByState(constants.StateConnected)))

	logger.WithFields(logrus.Fields{
		"address": address,
		"state":   state.String(),
	}).Debug("显示屏链路状态变化")
}

// Status 获取某显示屏的链路状态
func (g *DisplayGateway) Status(address string) (*LinkStatus, error) {
	address, err := g.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	l, ok := g.existingLink(address)
	if !ok {
		return &LinkStatus{Link: network.LinkStats{Address: address, State: constants.StateDisconnected}}, nil
	}
	stats := l.manager.Stats()
	stats.Address = address
	return &LinkStatus{Link: stats, Queue: l.queue.GetStats()}, nil
}

// Displays 所有已知显示屏
func (g *DisplayGateway) Displays() []*storage.DisplayInfo {
	return g.store.List()
}

// Close 停止所有队列并断开所有连接
func (g *DisplayGateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	links := g.links
	g.links = make(map[string]*deviceLink)
	g.mu.Unlock()

	var firstErr error
	for address, l := range links {
		l.queue.Stop()
		if err := l.manager.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
		logger.WithField("address", address).Debug("显示屏链路已关闭")
	}
	logger.Info("显示屏网关已关闭")
	return firstErr
}
