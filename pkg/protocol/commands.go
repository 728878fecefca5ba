package protocol

import (
	"encoding/binary"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
)

// 设备控制命令，均为短小的非分片写入

// BuildSetDrawMode 进入/退出DIY绘图模式
//
//	[05 00 04 01 mode]
func BuildSetDrawMode(mode uint8) []byte {
	return []byte{0x05, 0x00, 0x04, 0x01, mode}
}

// BuildBatchEnable 批量模式开启命令
//
//	[04 00 0a 01]
func BuildBatchEnable() []byte {
	return []byte{0x04, 0x00, 0x0a, 0x01}
}

// BuildBatchHeader 批量头，列出本次上传的槽位号
//
//	[lenLo lenHi 02 01 count 0 1 ... count-1]
func BuildBatchHeader(count int) []byte {
	if count < 0 {
		count = 0
	}
	pkt := make([]byte, 5+count)
	binary.LittleEndian.PutUint16(pkt[0:2], uint16(len(pkt)))
	pkt[2] = 0x02
	pkt[3] = 0x01
	pkt[4] = uint8(count)
	for i := 0; i < count; i++ {
		pkt[5+i] = uint8(i)
	}
	return pkt
}

// BuildScreenPower 屏幕开关
//
//	[05 00 07 01 on]
func BuildScreenPower(on bool) []byte {
	var v uint8
	if on {
		v = 1
	}
	return []byte{0x05, 0x00, 0x07, 0x01, v}
}

// BuildBrightness 设置亮度百分比，设备只接受5~100
//
//	[05 00 04 80 percent]
func BuildBrightness(percent int) []byte {
	if percent < 5 {
		percent = 5
	}
	if percent > 100 {
		percent = 100
	}
	return []byte{0x05, 0x00, 0x04, 0x80, uint8(percent)}
}

// BrightnessFromLevel 将0~255的亮度等级映射为5~100的百分比
func BrightnessFromLevel(level uint8) int {
	pct := int(level) * 100 / 255
	if pct < 5 {
		pct = 5
	}
	return pct
}

// ClockOptions 时钟表盘参数
type ClockOptions struct {
	Style    uint8 // 表盘样式 0~7
	ShowDate bool
	Hour24   bool
	Color    RGB
}

// BuildClock 切换到时钟表盘
//
//	[08 00 06 01 style|date<<7|h24<<6 r g b]
func BuildClock(opts ClockOptions) []byte {
	flags := opts.Style & 0x3f
	if opts.ShowDate {
		flags |= 0x80
	}
	if opts.Hour24 {
		flags |= 0x40
	}
	return []byte{0x08, 0x00, 0x06, 0x01, flags, opts.Color.R, opts.Color.G, opts.Color.B}
}

// RGB 颜色三元组
type RGB struct {
	R, G, B uint8
}

// ParseRGB 从整型切片构建颜色，长度不足时补0
func ParseRGB(v []int) RGB {
	var c [3]uint8
	for i := 0; i < len(v) && i < 3; i++ {
		c[i] = clampByte(v[i])
	}
	return RGB{R: c[0], G: c[1], B: c[2]}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// IsBatchSlot 槽位号是否落在批量范围内
func IsBatchSlot(slot uint8) bool {
	return slot < constants.MaxBatchSlots
}
