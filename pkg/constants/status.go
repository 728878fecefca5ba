// Package constants 定义了项目中使用的各种常量
package constants

// ConnectionState 设备连接状态
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected" // 无会话
	StateResolving    ConnectionState = "resolving"    // 正在设备缓存中轮询
	StateConnecting   ConnectionState = "connecting"   // 正在建立GATT会话
	StateConnected    ConnectionState = "connected"    // 会话可用
)

// String 实现Stringer
func (s ConnectionState) String() string {
	return string(s)
}

// IsConnected 是否处于可发送状态
func (s ConnectionState) IsConnected() bool {
	return s == StateConnected
}

// UploadStatus 上传结果状态，用于上传日志
type UploadStatus string

const (
	UploadSucceeded UploadStatus = "succeeded"
	UploadFailed    UploadStatus = "failed"
)
