package constants

import "time"

// iDotMatrix 点阵屏协议常量定义
// 设备固件只接受下列固定格式，所有值必须逐字节一致

// ============================================================================
// GATT 传输常量
// ============================================================================

const (
	// 厂商服务与特征值UUID
	ServiceUUID   = "000000fa-0000-1000-8000-00805f9b34fb"
	WriteCharUUID = "0000fa02-0000-1000-8000-00805f9b34fb"
	ReadCharUUID  = "0000fa03-0000-1000-8000-00805f9b34fb"

	// 广播名前缀，用于扫描时过滤设备
	DeviceNamePrefix = "IDM-"

	// 真实BLE无线包大小（MTU 517 - ATT开销 = 509）
	// 中继可能上报更大的协商值，但物理链路仍按509字节串行发送
	BLEWriteSizeCap = 509

	// 默认写入间隔，模拟原生协议栈的连接间隔节奏
	DefaultWritePacing = 25 * time.Millisecond

	// 设备解析轮询：15次，每次间隔1秒
	DefaultResolveAttempts = 15
	DefaultResolveInterval = time.Second

	// 会话建立最大尝试次数
	DefaultConnectAttempts = 3
)

// ============================================================================
// 分片帧常量
// ============================================================================

const (
	ChunkHeaderSize  = 16   // 固定16字节分片头
	DefaultChunkSize = 4096 // 默认分片正文大小

	// 分片头字段位置
	ChunkLengthPos    = 0  // [0:2] 分片长度（头+正文）
	ContentTypePos    = 2  // [2] 内容类型
	ContinuationPos   = 4  // [4] 续传标志
	TotalSizePos      = 5  // [5:9] 未分片总长度
	CRC32Pos          = 9  // [9:13] 整个负载的CRC32
	IntervalPos       = 13 // [13] 轮播间隔（秒）
	SlotIndexPos      = 15 // [15] 槽位号
	ContinuationFirst = 0x00
	ContinuationNext  = 0x02

	// 内容类型
	ContentTypeGIF   = 0x01
	ContentTypeImage = 0x02
	ContentTypeText  = 0x03

	// 槽位号：0~11 为批量槽位，0x0d 表示单独上传
	SlotStandalone  = 0x0d
	MaxBatchSlots   = 12
	DefaultInterval = 5

	// 长度字段占位值
	ChunkLengthPlaceholder = 0xffff
)

// ============================================================================
// 文字包常量
// ============================================================================

const (
	TextHeaderSize   = 16
	TextMetadataSize = 14
	TextTrailerByte  = 0x0c
	SeparatorSize    = 4

	// MaxTextPacketSize 文字包总长度字段为u16
	MaxTextPacketSize = 0xFFFF

	// 分隔符首字节编码字形宽度类别
	SeparatorWide    = 0x05 // 16x32 字形
	SeparatorCompact = 0x02 // 8x16 字形

	// 字形尺寸
	GlyphWidthWide     = 16
	GlyphHeightWide    = 32
	GlyphWidthCompact  = 8
	GlyphHeightCompact = 16
)

// ============================================================================
// 批量上传节奏
// ============================================================================

const (
	BatchControlPause = 100 * time.Millisecond // 批量控制命令之间的停顿
	BatchFilePause    = 150 * time.Millisecond // 批量文件之间的停顿
)

// ============================================================================
// 显示参数
// ============================================================================

const (
	PixelSizeSmall = 16
	PixelSizeLarge = 32

	DefaultGifDelayCentis = 10 // 帧延迟缺失时使用100ms
)

// 文字动画模式
const (
	AnimationHold   = 0
	AnimationLeft   = 1
	AnimationRight  = 2
	AnimationUp     = 3
	AnimationDown   = 4
	AnimationBlink  = 5
	AnimationFade   = 6
	AnimationTetris = 7
	AnimationFill   = 8
)

// 文字颜色模式
const (
	ColorModeWhite    = 0
	ColorModeCustom   = 1
	ColorModeRainbow1 = 2
	ColorModeRainbow2 = 3
	ColorModeRainbow3 = 4
	ColorModeRainbow4 = 5
)

// AnimationModes 名称到动画模式的映射，供HTTP/CLI参数解析
var AnimationModes = map[string]uint8{
	"hold":   AnimationHold,
	"left":   AnimationLeft,
	"right":  AnimationRight,
	"up":     AnimationUp,
	"down":   AnimationDown,
	"blink":  AnimationBlink,
	"fade":   AnimationFade,
	"tetris": AnimationTetris,
	"fill":   AnimationFill,
}
