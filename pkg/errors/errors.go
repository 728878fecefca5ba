package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode 表示错误码类型
type ErrorCode int

// 定义应用程序的错误码
const (
	// 通用错误
	ErrUnknown ErrorCode = iota + 1000
	ErrInvalidParameter
	ErrNotImplemented

	// 设备连接相关错误
	ErrDeviceUnavailable // 设备解析超时（缓存中始终找不到设备）
	ErrConnectFailed     // 会话建立重试耗尽
	ErrNotConnected      // 未连接时调用发送/读取

	// 传输相关错误
	ErrWriteFailed // 分片写入被拒绝或未确认
	ErrQueueFull   // 上传队列已满
	ErrQueueClosed // 上传队列已停止

	// 编码相关错误
	ErrEncodeFailed        // 源媒体不可读、损坏或没有帧
	ErrBatchLimitExceeded  // 批量文件超过12个（只记录，截断后继续）
	ErrProtocolInvalidData // 协议数据校验失败

	// 存储相关错误
	ErrStorageFailed
)

var codeNames = map[ErrorCode]string{
	ErrUnknown:             "Unknown",
	ErrInvalidParameter:    "InvalidParameter",
	ErrNotImplemented:      "NotImplemented",
	ErrDeviceUnavailable:   "DeviceUnavailable",
	ErrConnectFailed:       "ConnectFailed",
	ErrNotConnected:        "NotConnected",
	ErrWriteFailed:         "WriteFailed",
	ErrQueueFull:           "QueueFull",
	ErrQueueClosed:         "QueueClosed",
	ErrEncodeFailed:        "EncodeFailed",
	ErrBatchLimitExceeded:  "BatchLimitExceeded",
	ErrProtocolInvalidData: "ProtocolInvalidData",
	ErrStorageFailed:       "StorageFailed",
}

// String 返回错误码名称
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// AppError 应用程序自定义错误类型
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持Go 1.13+的错误包装
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New 创建一个新的AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 使用格式化消息创建AppError
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装一个已有的错误
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf 返回错误链上第一个AppError的错误码，没有则返回ErrUnknown
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// IsErrCode 检查错误链中是否存在指定错误码
func IsErrCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	for stderrors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		if appErr.Cause == nil {
			return false
		}
		err = appErr.Cause
	}
	return false
}

// IsRetryable 判断错误是否值得调用方整体重试
// NotConnected 属于前置条件错误，不在此列
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrDeviceUnavailable, ErrConnectFailed, ErrWriteFailed:
		return true
	default:
		return false
	}
}
