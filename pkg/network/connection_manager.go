package network

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ManagerOptions 连接管理器参数
type ManagerOptions struct {
	ResolveAttempts int
	ResolveInterval time.Duration
	ConnectAttempts int
	ConnectTimeout  time.Duration
	WriteChunkCap   int
	WritePacing     time.Duration
	NamePrefix      string
	Retry           RetryConfig
}

// DefaultManagerOptions 默认参数
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		ResolveAttempts: constants.DefaultResolveAttempts,
		ResolveInterval: constants.DefaultResolveInterval,
		ConnectAttempts: constants.DefaultConnectAttempts,
		ConnectTimeout:  10 * time.Second,
		WriteChunkCap:   constants.BLEWriteSizeCap,
		WritePacing:     constants.DefaultWritePacing,
		NamePrefix:      constants.DeviceNamePrefix,
		Retry:           DefaultRetryConfig,
	}
}

// OptionsFromConfig 由配置生成参数
func OptionsFromConfig(cfg config.TransportConfig, namePrefix string) ManagerOptions {
	opts := DefaultManagerOptions()
	opts.ResolveAttempts = cfg.ResolveAttempts
	opts.ResolveInterval = cfg.ResolveInterval()
	opts.ConnectAttempts = cfg.ConnectAttempts
	opts.ConnectTimeout = cfg.ConnectTimeout()
	opts.WriteChunkCap = cfg.WriteChunkCap
	opts.WritePacing = cfg.WritePacing()
	if namePrefix != "" {
		opts.NamePrefix = namePrefix
	}
	opts.Retry.MaxRetries = cfg.ConnectAttempts
	return opts
}

// StateChangeFunc 连接状态变化回调
type StateChangeFunc func(address string, state constants.ConnectionState)

// LinkStats 链路统计
type LinkStats struct {
	Address       string                    `json:"address"`
	State         constants.ConnectionState `json:"state"`
	Connects      int64                     `json:"connects"`
	Writes        int64                     `json:"writes"`
	BytesSent     int64                     `json:"bytesSent"`
	WriteFailures int64                     `json:"writeFailures"`
	LastActivity  time.Time                 `json:"lastActivity"`
}

// ConnectionManager 单个显示屏的连接管理
// 由调用方创建并持有；同一管理器上的Send互斥执行，保证分片不交错
type ConnectionManager struct {
	transport Transport
	opts      ManagerOptions

	connectMu sync.Mutex // 串行化Connect/Disconnect
	sendMu    sync.Mutex // 串行化Send

	mu       sync.RWMutex
	session  Session
	address  string
	state    constants.ConnectionState
	lastSeen time.Time
	onState  StateChangeFunc

	connects      atomic.Int64
	writes        atomic.Int64
	bytesSent     atomic.Int64
	writeFailures atomic.Int64
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(transport Transport, opts ManagerOptions) *ConnectionManager {
	if opts.ResolveAttempts <= 0 {
		opts.ResolveAttempts = 1
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 1
	}
	// 509为物理链路上限，即使中继报告更大的值也不能超过
	if opts.WriteChunkCap <= 0 || opts.WriteChunkCap > constants.BLEWriteSizeCap {
		opts.WriteChunkCap = constants.BLEWriteSizeCap
	}
	return &ConnectionManager{
		transport: transport,
		opts:      opts,
		state:     constants.StateDisconnected,
	}
}

// SetOnStateChange 设置状态变化回调
func (m *ConnectionManager) SetOnStateChange(fn StateChangeFunc) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

func (m *ConnectionManager) setState(address string, state constants.ConnectionState) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	fn := m.onState
	m.mu.Unlock()

	if changed && fn != nil {
		fn(address, state)
	}
}

// State 当前连接状态
func (m *ConnectionManager) State() constants.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Address 当前（或最近一次）连接的地址
func (m *ConnectionManager) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

// IsConnected 会话存在且可用
func (m *ConnectionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.Connected()
}

// Stats 链路统计快照
func (m *ConnectionManager) Stats() LinkStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return LinkStats{
		Address:       m.address,
		State:         m.state,
		Connects:      m.connects.Load(),
		Writes:        m.writes.Load(),
		BytesSent:     m.bytesSent.Load(),
		WriteFailures: m.writeFailures.Load(),
		LastActivity:  m.lastSeen,
	}
}

// Connect 建立到address的会话
// 已连接同一地址时直接返回；先在设备缓存中轮询，再按指数退避重试连接
func (m *ConnectionManager) Connect(ctx context.Context, address string) error {
	if address == "" {
		return apperrors.New(apperrors.ErrInvalidParameter, "设备地址为空")
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.RLock()
	current, currentAddr := m.session, m.address
	m.mu.RUnlock()

	if current != nil {
		if strings.EqualFold(currentAddr, address) && current.Connected() {
			return nil
		}
		// 地址变化或会话已失效
		m.dropSession(current, "切换设备或会话失效")
	}

	log := logger.WithField("address", address)
	m.mu.Lock()
	m.address = address
	m.mu.Unlock()

	// 设备解析
	m.setState(address, constants.StateResolving)
	peripheral, found := Peripheral{}, false
	for attempt := 1; attempt <= m.opts.ResolveAttempts; attempt++ {
		if peripheral, found = m.transport.Lookup(address); found {
			break
		}
		log.WithField("attempt", attempt).Debug("设备缓存中未找到设备，等待重试")
		if attempt < m.opts.ResolveAttempts {
			if err := sleepCtx(ctx, m.opts.ResolveInterval); err != nil {
				m.setState(address, constants.StateDisconnected)
				return err
			}
		}
	}
	if !found {
		m.setState(address, constants.StateDisconnected)
		log.WithField("attempts", m.opts.ResolveAttempts).Warn("设备不可用")
		return apperrors.Newf(apperrors.ErrDeviceUnavailable, "设备%s在%d次轮询后仍未出现", address, m.opts.ResolveAttempts)
	}

	// 建立会话
	m.setState(address, constants.StateConnecting)
	var lastErr error
	for attempt := 1; attempt <= m.opts.ConnectAttempts; attempt++ {
		if attempt > 1 {
			delay := m.opts.Retry.calculateDelay(attempt - 1)
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
				"lastErr": lastErr.Error(),
			}).Warn("连接重试中...")
			if err := sleepCtx(ctx, delay); err != nil {
				m.setState(address, constants.StateDisconnected)
				return err
			}
		}

		session, err := m.connectOnce(ctx, peripheral)
		if err == nil {
			m.mu.Lock()
			m.session = session
			m.lastSeen = time.Now()
			m.mu.Unlock()
			m.connects.Add(1)
			m.setState(address, constants.StateConnected)

			log.WithFields(logrus.Fields{
				"name":         peripheral.Name,
				"attempt":      attempt,
				"maxWriteSize": session.MaxWriteSize(),
			}).Info("设备已连接")
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			m.setState(address, constants.StateDisconnected)
			return ctx.Err()
		}
	}

	m.setState(address, constants.StateDisconnected)
	log.WithFields(logrus.Fields{
		"attempts": m.opts.ConnectAttempts,
		"error":    lastErr.Error(),
	}).Error("设备连接最终失败")
	return apperrors.Wrap(apperrors.ErrConnectFailed, "连接设备"+address+"失败", lastErr)
}

func (m *ConnectionManager) connectOnce(ctx context.Context, p Peripheral) (Session, error) {
	cctx := ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}
	return m.transport.Connect(cctx, p)
}

// dropSession 关闭并清除会话，仅当它仍是当前会话时
func (m *ConnectionManager) dropSession(s Session, reason string) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.session = nil
	address := m.address
	m.mu.Unlock()

	if err := s.Close(); err != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err.Error(),
		}).Debug("关闭会话出错")
	}
	logger.WithFields(logrus.Fields{
		"address": address,
		"reason":  reason,
	}).Info("会话已释放")
	m.setState(address, constants.StateDisconnected)
}

// Disconnect 断开当前会话，可重复调用
func (m *ConnectionManager) Disconnect() error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.RLock()
	s := m.session
	m.mu.RUnlock()

	if s != nil {
		m.dropSession(s, "主动断开")
	}
	return nil
}

func (m *ConnectionManager) currentSession() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// writeSize 单次写入大小：min(协商值, 上限)
func (m *ConnectionManager) writeSize(s Session) int {
	size := s.MaxWriteSize()
	if size <= 0 || size > m.opts.WriteChunkCap {
		size = m.opts.WriteChunkCap
	}
	return size
}

// Send 将data按写入上限切分后顺序写出，每次写入后停顿
// 任一写入失败立即停止并返回WriteFailed；会话已断开时释放会话，下次上传自动重连
func (m *ConnectionManager) Send(ctx context.Context, data []byte, waitForAck bool) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	s := m.currentSession()
	if s == nil {
		return apperrors.New(apperrors.ErrNotConnected, "设备未连接")
	}

	size := m.writeSize(s)
	address := m.Address()
	logger.HexDump("发送数据", data, logrus.Fields{
		"address": address,
		"bytes":   len(data),
		"ack":     waitForAck,
	})

	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}

		if err := s.Write(data[off:end], waitForAck); err != nil {
			m.writeFailures.Add(1)
			logger.WithFields(logrus.Fields{
				"address": address,
				"offset":  off,
				"total":   len(data),
				"error":   err.Error(),
			}).Error("写入失败，终止发送")
			if !s.Connected() {
				m.dropSession(s, "写入时链路断开")
			}
			return apperrors.Wrap(apperrors.ErrWriteFailed, "写入失败", err)
		}
		m.writes.Add(1)
		m.bytesSent.Add(int64(end - off))

		if err := sleepCtx(ctx, m.opts.WritePacing); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.lastSeen = time.Now()
	m.mu.Unlock()
	return nil
}

// Read 读取设备响应
func (m *ConnectionManager) Read(ctx context.Context) ([]byte, error) {
	s := m.currentSession()
	if s == nil {
		return nil, apperrors.New(apperrors.ErrNotConnected, "设备未连接")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.Read()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProtocolInvalidData, "读取失败", err)
	}
	return data, nil
}

// Scan 扫描附近的显示屏
func (m *ConnectionManager) Scan(ctx context.Context) ([]Advertisement, error) {
	return m.transport.Scan(ctx, m.opts.NamePrefix)
}
