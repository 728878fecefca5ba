package network

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
)

// ErrLinkLost 模拟链路断开
var ErrLinkLost = errors.New("link lost")

// MemoryWrite 一次记录下来的写入
type MemoryWrite struct {
	Data         []byte
	WithResponse bool
	At           time.Time
}

// MemoryDevice 内存中的模拟显示屏
type MemoryDevice struct {
	Address string
	Name    string
	MTU     int

	mu           sync.Mutex
	writes       []MemoryWrite
	readData     []byte
	failAt       int // 第failAt次写入失败（从1开始），0表示不失败
	failErr      error
	dropOnFail   bool
	connected    bool
	connectFails int
}

// Writes 已记录的写入
func (d *MemoryDevice) Writes() []MemoryWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MemoryWrite, len(d.writes))
	copy(out, d.writes)
	return out
}

// Bytes 所有写入按顺序拼接后的字节流
func (d *MemoryDevice) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []byte
	for _, w := range d.writes {
		out = append(out, w.Data...)
	}
	return out
}

// Reset 清空写入记录
func (d *MemoryDevice) Reset() {
	d.mu.Lock()
	d.writes = nil
	d.mu.Unlock()
}

// FailWriteAt 第n次写入返回err；dropLink为true时同时断开链路
func (d *MemoryDevice) FailWriteAt(n int, err error, dropLink bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrLinkLost
	}
	d.failAt = n + len(d.writes)
	d.failErr = err
	d.dropOnFail = dropLink
}

// FailConnects 接下来n次连接失败
func (d *MemoryDevice) FailConnects(n int) {
	d.mu.Lock()
	d.connectFails = n
	d.mu.Unlock()
}

// SetReadData 设置读特征值返回的数据
func (d *MemoryDevice) SetReadData(data []byte) {
	d.mu.Lock()
	d.readData = append([]byte(nil), data...)
	d.mu.Unlock()
}

// DropLink 模拟设备断电或走出范围
func (d *MemoryDevice) DropLink() {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
}

// Connected 设备端是否有活动会话
func (d *MemoryDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// MemoryTransport 进程内传输实现，记录所有写入，可注入失败
// 用于测试和不带无线电的演练模式
type MemoryTransport struct {
	// AutoRegister 为true时，未知地址在首次查找时自动注册
	AutoRegister bool

	mu       sync.Mutex
	devices  map[string]*MemoryDevice
	lookups  map[string]int
	connects int
}

// NewMemoryTransport 创建内存传输
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		devices: make(map[string]*MemoryDevice),
		lookups: make(map[string]int),
	}
}

func normalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// AddDevice 注册一个模拟设备，mtu<=0时使用509
func (t *MemoryTransport) AddDevice(address, name string, mtu int) *MemoryDevice {
	if mtu <= 0 {
		mtu = constants.BLEWriteSizeCap
	}
	d := &MemoryDevice{Address: address, Name: name, MTU: mtu}
	t.mu.Lock()
	t.devices[normalizeAddress(address)] = d
	t.mu.Unlock()
	return d
}

// RemoveDevice 设备从缓存中消失
func (t *MemoryTransport) RemoveDevice(address string) {
	t.mu.Lock()
	delete(t.devices, normalizeAddress(address))
	t.mu.Unlock()
}

// Device 按地址获取模拟设备
func (t *MemoryTransport) Device(address string) (*MemoryDevice, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[normalizeAddress(address)]
	return d, ok
}

// LookupCount 对address的查找次数
func (t *MemoryTransport) LookupCount(address string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookups[normalizeAddress(address)]
}

// ConnectCount 连接尝试总次数
func (t *MemoryTransport) ConnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Lookup 实现Transport
func (t *MemoryTransport) Lookup(address string) (Peripheral, bool) {
	key := normalizeAddress(address)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lookups[key]++
	d, ok := t.devices[key]
	if !ok && t.AutoRegister {
		d = &MemoryDevice{Address: address, Name: constants.DeviceNamePrefix + "MEMORY", MTU: constants.BLEWriteSizeCap}
		t.devices[key] = d
		ok = true
	}
	if !ok {
		return Peripheral{}, false
	}
	return Peripheral{Address: d.Address, Name: d.Name, LastSeen: time.Now()}, true
}

// Connect 实现Transport
func (t *MemoryTransport) Connect(ctx context.Context, p Peripheral) (Session, error) {
	t.mu.Lock()
	t.connects++
	d, ok := t.devices[normalizeAddress(p.Address)]
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("device not found: " + p.Address)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectFails > 0 {
		d.connectFails--
		return nil, errors.New("gatt connect refused")
	}
	d.connected = true
	return &memorySession{device: d}, nil
}

// Scan 实现Transport
func (t *MemoryTransport) Scan(ctx context.Context, namePrefix string) ([]Advertisement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Advertisement, 0, len(t.devices))
	for _, d := range t.devices {
		if strings.HasPrefix(d.Name, namePrefix) {
			out = append(out, Advertisement{Address: d.Address, Name: d.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, ctx.Err()
}

// memorySession MemoryDevice上的会话
type memorySession struct {
	device *MemoryDevice
	mu     sync.Mutex
	closed bool
}

func (s *memorySession) MaxWriteSize() int {
	return s.device.MTU
}

func (s *memorySession) Write(data []byte, withResponse bool) error {
	if !s.Connected() {
		return ErrLinkLost
	}

	d := s.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failAt > 0 && len(d.writes)+1 == d.failAt {
		d.failAt = 0
		if d.dropOnFail {
			d.connected = false
		}
		return d.failErr
	}
	d.writes = append(d.writes, MemoryWrite{
		Data:         append([]byte(nil), data...),
		WithResponse: withResponse,
		At:           time.Now(),
	})
	return nil
}

func (s *memorySession) Read() ([]byte, error) {
	if !s.Connected() {
		return nil, ErrLinkLost
	}
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	return append([]byte(nil), s.device.readData...), nil
}

func (s *memorySession) Connected() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	return !closed && s.device.Connected()
}

func (s *memorySession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.device.DropLink()
	}
	return nil
}
