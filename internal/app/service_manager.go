package app

import (
	"fmt"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/redis"
	"github.com/bujia-iot/iot-dotmatrix/pkg/gateway"
	"github.com/bujia-iot/iot-dotmatrix/pkg/network"
	"github.com/bujia-iot/iot-dotmatrix/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ServiceManager 服务管理器，负责按配置创建传输、上传日志和显示屏网关
type ServiceManager struct {
	cfg *config.Config

	Transport network.Transport
	Journal   storage.Journal
	Gateway   *gateway.DisplayGateway

	ble          *network.BLETransport
	redisEnabled bool
}

// NewServiceManager 创建服务管理器
func NewServiceManager(cfg *config.Config) *ServiceManager {
	return &ServiceManager{cfg: cfg}
}

// Init 初始化所有服务
func (m *ServiceManager) Init() error {
	transport, err := m.newTransport()
	if err != nil {
		return err
	}
	m.Transport = transport
	m.Journal = m.newJournal()

	opts := gateway.OptionsFromConfig(m.cfg)
	opts.Journal = m.Journal
	m.Gateway = gateway.NewDisplayGateway(m.Transport, opts)

	logger.WithFields(logrus.Fields{
		"transport":      m.cfg.Transport.Mode,
		"defaultAddress": m.cfg.Device.Address,
		"pixelSize":      m.cfg.Device.PixelSize,
		"redis":          m.redisEnabled,
	}).Info("服务初始化完成")
	return nil
}

// newTransport 按transport.mode创建传输
func (m *ServiceManager) newTransport() (network.Transport, error) {
	switch m.cfg.Transport.Mode {
	case "memory":
		// 无蓝牙环境下的演练模式，任意地址都视为在线
		t := network.NewMemoryTransport()
		t.AutoRegister = true
		logger.Warn("使用内存传输，数据不会发送到真实设备")
		return t, nil
	case "ble":
		t, err := network.NewBLETransport(m.cfg.Transport)
		if err != nil {
			return nil, err
		}
		if err := t.Start(); err != nil {
			return nil, fmt.Errorf("启用蓝牙适配器失败: %w", err)
		}
		m.ble = t
		return t, nil
	default:
		return nil, fmt.Errorf("不支持的传输模式：%s", m.cfg.Transport.Mode)
	}
}

// newJournal Redis可用时使用Redis上传日志，否则退回进程内日志
func (m *ServiceManager) newJournal() storage.Journal {
	rc := m.cfg.Redis
	if !rc.Enabled {
		return storage.NewMemoryJournal(storage.DefaultMaxHistory)
	}

	client, err := redis.InitClient(rc)
	if err != nil {
		// Redis不可用不影响上传功能
		logger.WithField("error", err.Error()).Warn("Redis初始化失败，上传日志改为保存在内存中")
		return storage.NewMemoryJournal(storage.DefaultMaxHistory)
	}
	m.redisEnabled = true
	ttl := time.Duration(rc.JournalTTL) * time.Hour
	return storage.NewRedisJournal(client, rc.KeyPrefix, ttl, storage.DefaultMaxHistory)
}

// Shutdown 关闭所有服务
func (m *ServiceManager) Shutdown() error {
	var firstErr error
	if m.Gateway != nil {
		if err := m.Gateway.Close(); err != nil {
			firstErr = err
		}
	}
	if m.ble != nil {
		m.ble.Stop()
	}
	if m.redisEnabled {
		if err := redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
