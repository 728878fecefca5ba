package network

import (
	"context"
	"time"
)

// Peripheral 宿主设备缓存中的一个外设
type Peripheral struct {
	Address  string
	Name     string
	RSSI     int16
	LastSeen time.Time
}

// Advertisement 扫描结果
type Advertisement struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int16  `json:"rssi"`
}

// Transport 底层无线传输，负责设备查找、建立会话和扫描
type Transport interface {
	// Lookup 在宿主设备缓存中查找地址，未发现时返回false
	Lookup(address string) (Peripheral, bool)

	// Connect 建立GATT会话，可由ctx取消
	Connect(ctx context.Context, p Peripheral) (Session, error)

	// Scan 返回广播名以namePrefix开头的设备
	Scan(ctx context.Context, namePrefix string) ([]Advertisement, error)
}

// Session 已建立的设备会话
type Session interface {
	// MaxWriteSize 协商后单次写入的最大字节数
	MaxWriteSize() int

	// Write 向写特征值写入一次，withResponse为true时等待链路层确认
	Write(data []byte, withResponse bool) error

	// Read 读取读特征值
	Read() ([]byte, error)

	// Connected 会话是否仍然可用
	Connected() bool

	// Close 断开会话，可重复调用
	Close() error
}
