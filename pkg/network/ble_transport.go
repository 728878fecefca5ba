package network

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// ATT协议头占用3字节
const attHeaderSize = 3

// 未能读取MTU时的保守写入大小
const minWriteSize = 20

type cachedPeripheral struct {
	address bluetooth.Address
	info    Peripheral
}

// BLETransport 基于tinygo bluetooth的GATT传输
// 后台持续扫描，维护一个广播缓存作为宿主设备缓存
type BLETransport struct {
	adapter     *bluetooth.Adapter
	serviceUUID bluetooth.UUID
	writeUUID   bluetooth.UUID
	readUUID    bluetooth.UUID

	mu       sync.RWMutex
	cache    map[string]cachedPeripheral
	scanning atomic.Bool
	stopped  atomic.Bool
}

// NewBLETransport 解析特征值UUID并创建传输
func NewBLETransport(cfg config.TransportConfig) (*BLETransport, error) {
	svc, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("解析服务UUID失败: %w", err)
	}
	write, err := bluetooth.ParseUUID(cfg.WriteUUID)
	if err != nil {
		return nil, fmt.Errorf("解析写特征值UUID失败: %w", err)
	}
	read, err := bluetooth.ParseUUID(cfg.ReadUUID)
	if err != nil {
		return nil, fmt.Errorf("解析读特征值UUID失败: %w", err)
	}
	return &BLETransport{
		adapter:     bluetooth.DefaultAdapter,
		serviceUUID: svc,
		writeUUID:   write,
		readUUID:    read,
		cache:       make(map[string]cachedPeripheral),
	}, nil
}

// Start 启用适配器并开始后台扫描
func (t *BLETransport) Start() error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("启用蓝牙适配器失败: %w", err)
	}
	go t.scanLoop()
	return nil
}

// Stop 停止后台扫描
func (t *BLETransport) Stop() {
	t.stopped.Store(true)
	if t.scanning.Load() {
		_ = t.adapter.StopScan()
	}
}

// scanLoop 扫描意外退出时间隔重启
func (t *BLETransport) scanLoop() {
	for !t.stopped.Load() {
		t.scanning.Store(true)
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			t.remember(result)
		})
		t.scanning.Store(false)
		if t.stopped.Load() {
			return
		}
		if err != nil {
			logger.WithField("error", err.Error()).Warn("蓝牙扫描中断，稍后重试")
		}
		time.Sleep(time.Second)
	}
}

func (t *BLETransport) remember(result bluetooth.ScanResult) {
	address := result.Address.String()
	name := result.LocalName()

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.cache[normalizeAddress(address)]
	if name == "" && seen {
		// 扫描响应可能不带名称
		name = prev.info.Name
	}
	t.cache[normalizeAddress(address)] = cachedPeripheral{
		address: result.Address,
		info: Peripheral{
			Address:  address,
			Name:     name,
			RSSI:     result.RSSI,
			LastSeen: time.Now(),
		},
	}
	if !seen {
		logger.WithFields(logrus.Fields{
			"address": address,
			"name":    name,
			"rssi":    result.RSSI,
		}).Debug("发现蓝牙设备")
	}
}

// Lookup 实现Transport
func (t *BLETransport) Lookup(address string) (Peripheral, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cache[normalizeAddress(address)]
	return c.info, ok
}

// Scan 实现Transport，返回缓存中匹配前缀的设备
func (t *BLETransport) Scan(ctx context.Context, namePrefix string) ([]Advertisement, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Advertisement, 0, len(t.cache))
	for _, c := range t.cache {
		if strings.HasPrefix(c.info.Name, namePrefix) {
			out = append(out, Advertisement{Address: c.info.Address, Name: c.info.Name, RSSI: c.info.RSSI})
		}
	}
	return out, ctx.Err()
}

type connectResult struct {
	session *bleSession
	err     error
}

// Connect 实现Transport：连接、发现服务和特征值、读取MTU
func (t *BLETransport) Connect(ctx context.Context, p Peripheral) (Session, error) {
	t.mu.RLock()
	c, ok := t.cache[normalizeAddress(p.Address)]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("设备%s不在扫描缓存中", p.Address)
	}

	done := make(chan connectResult, 1)
	go func() {
		s, err := t.connect(c.address)
		done <- connectResult{session: s, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.session, nil
	case <-ctx.Done():
		// 连接完成后立即释放
		go func() {
			if r := <-done; r.session != nil {
				_ = r.session.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (t *BLETransport) connect(address bluetooth.Address) (*bleSession, error) {
	device, err := t.adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*bleSession, error) {
		_ = device.Disconnect()
		return nil, err
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{t.serviceUUID})
	if err != nil {
		return fail(fmt.Errorf("发现服务失败: %w", err))
	}
	if len(services) == 0 {
		return fail(fmt.Errorf("设备不提供服务%s", t.serviceUUID.String()))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{t.writeUUID, t.readUUID})
	if err != nil {
		return fail(fmt.Errorf("发现特征值失败: %w", err))
	}

	s := &bleSession{device: device}
	var haveWrite, haveRead bool
	for _, ch := range chars {
		switch ch.UUID().String() {
		case t.writeUUID.String():
			s.write, haveWrite = ch, true
		case t.readUUID.String():
			s.read, haveRead = ch, true
		}
	}
	if !haveWrite {
		return fail(fmt.Errorf("未找到写特征值%s", t.writeUUID.String()))
	}
	s.canRead = haveRead

	s.maxWrite = minWriteSize
	if mtu, err := s.write.GetMTU(); err == nil && int(mtu) > attHeaderSize {
		s.maxWrite = int(mtu) - attHeaderSize
	}
	s.connected.Store(true)
	return s, nil
}

// bleSession GATT会话
type bleSession struct {
	device    bluetooth.Device
	write     bluetooth.DeviceCharacteristic
	read      bluetooth.DeviceCharacteristic
	canRead   bool
	maxWrite  int
	connected atomic.Bool
	closeOnce sync.Once
}

func (s *bleSession) MaxWriteSize() int {
	return s.maxWrite
}

func (s *bleSession) Write(data []byte, withResponse bool) error {
	var err error
	if withResponse {
		_, err = s.write.Write(data)
	} else {
		_, err = s.write.WriteWithoutResponse(data)
	}
	if err != nil {
		// 写入失败后不再信任该会话，由上层重连
		s.connected.Store(false)
	}
	return err
}

func (s *bleSession) Read() ([]byte, error) {
	if !s.canRead {
		return nil, fmt.Errorf("设备不提供读特征值")
	}
	buf := make([]byte, 512)
	n, err := s.read.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *bleSession) Connected() bool {
	return s.connected.Load()
}

func (s *bleSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		err = s.device.Disconnect()
	})
	return err
}
