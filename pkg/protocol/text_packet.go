package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
)

// TextStyle 文字包元数据
type TextStyle struct {
	AnimationMode uint8
	Speed         uint8
	ColorMode     uint8
	Color         RGB
	BgMode        uint8
	BgColor       RGB
}

// DefaultTextStyle 红色左移滚动
func DefaultTextStyle() TextStyle {
	return TextStyle{
		AnimationMode: constants.AnimationLeft,
		Speed:         95,
		ColorMode:     constants.ColorModeCustom,
		Color:         RGB{R: 255},
		BgMode:        0,
		BgColor:       RGB{G: 255},
	}
}

// Separator 返回字形分隔符，首字节编码字形宽度类别
func Separator(glyphWidth int) []byte {
	class := uint8(constants.SeparatorWide)
	if glyphWidth <= constants.GlyphWidthCompact {
		class = constants.SeparatorCompact
	}
	return []byte{class, 0xff, 0xff, 0xff}
}

// GlyphBitmapSize 单个字形位图字节数（逐行打包，行尾补齐）
func GlyphBitmapSize(width, height int) int {
	return (width + 7) / 8 * height
}

func glyphSizeForClass(class byte) int {
	switch class {
	case constants.SeparatorWide:
		return GlyphBitmapSize(constants.GlyphWidthWide, constants.GlyphHeightWide)
	case constants.SeparatorCompact:
		return GlyphBitmapSize(constants.GlyphWidthCompact, constants.GlyphHeightCompact)
	}
	return 0
}

// CountGlyphs 统计位图流中的字形数
// 按分隔符+位图的固定步长遍历，避免位图内容恰好与分隔符相同时误计
func CountGlyphs(bitmaps []byte) int {
	if len(bitmaps) < constants.SeparatorSize {
		return 0
	}
	size := glyphSizeForClass(bitmaps[0])
	if size == 0 {
		return bytes.Count(bitmaps, bitmaps[:constants.SeparatorSize])
	}
	stride := constants.SeparatorSize + size
	n := 0
	for off := 0; off+constants.SeparatorSize <= len(bitmaps); off += stride {
		if !bytes.Equal(bitmaps[off+1:off+constants.SeparatorSize], []byte{0xff, 0xff, 0xff}) {
			break
		}
		n++
	}
	return n
}

// BuildTextPacket 组装文字包：16字节外层头 + 14字节元数据 + 字形位图
//
// 外层头：
//
//	[0:2]  总长度
//	[2]    协议号 0x03
//	[3:5]  0 0
//	[5:9]  正文长度（元数据+位图）
//	[9:13] 正文CRC32
//	[13:15] 0 0
//	[15]   0x0c
//
// 元数据：
//
//	[字符数u16 00 01 动画模式 速度 前景模式 R G B 背景模式 R G B]
//
// 总长度字段为u16，超出0xFFFF时返回ErrEncodeFailed
func BuildTextPacket(bitmaps []byte, style TextStyle) ([]byte, error) {
	total := constants.TextHeaderSize + constants.TextMetadataSize + len(bitmaps)
	if total > constants.MaxTextPacketSize {
		return nil, apperrors.Newf(apperrors.ErrEncodeFailed,
			"文字过长：文字包%d字节，超过上限%d字节", total, constants.MaxTextPacketSize)
	}
	glyphs := CountGlyphs(bitmaps)

	body := make([]byte, constants.TextMetadataSize, constants.TextMetadataSize+len(bitmaps))
	binary.LittleEndian.PutUint16(body[0:2], uint16(glyphs))
	body[2] = 0x00
	body[3] = 0x01
	body[4] = style.AnimationMode
	body[5] = style.Speed
	body[6] = style.ColorMode
	body[7], body[8], body[9] = style.Color.R, style.Color.G, style.Color.B
	body[10] = style.BgMode
	body[11], body[12], body[13] = style.BgColor.R, style.BgColor.G, style.BgColor.B
	body = append(body, bitmaps...)

	pkt := make([]byte, constants.TextHeaderSize, constants.TextHeaderSize+len(body))
	binary.LittleEndian.PutUint16(pkt[0:2], uint16(constants.TextHeaderSize+len(body)))
	pkt[2] = constants.ContentTypeText
	binary.LittleEndian.PutUint32(pkt[5:9], uint32(len(body)))
	binary.LittleEndian.PutUint32(pkt[9:13], crc32.ChecksumIEEE(body))
	pkt[15] = constants.TextTrailerByte
	return append(pkt, body...), nil
}

// TextPacketInfo 文字包解析结果
type TextPacketInfo struct {
	TotalLength uint16
	BodyLength  uint32
	CRC32       uint32
	Glyphs      uint16
	Style       TextStyle
	Bitmaps     []byte
}

// ParseTextPacket 解析并校验文字包
func ParseTextPacket(pkt []byte) (*TextPacketInfo, error) {
	minLen := constants.TextHeaderSize + constants.TextMetadataSize
	if len(pkt) < minLen {
		return nil, fmt.Errorf("文字包长度不足：%d，最小需要：%d", len(pkt), minLen)
	}
	if pkt[2] != constants.ContentTypeText || pkt[15] != constants.TextTrailerByte {
		return nil, fmt.Errorf("文字包头错误：协议号0x%02X，尾字节0x%02X", pkt[2], pkt[15])
	}
	info := &TextPacketInfo{
		TotalLength: binary.LittleEndian.Uint16(pkt[0:2]),
		BodyLength:  binary.LittleEndian.Uint32(pkt[5:9]),
		CRC32:       binary.LittleEndian.Uint32(pkt[9:13]),
	}
	if int(info.TotalLength) != len(pkt) {
		return nil, fmt.Errorf("长度不匹配：声明%d，实际%d", info.TotalLength, len(pkt))
	}
	body := pkt[constants.TextHeaderSize:]
	if int(info.BodyLength) != len(body) {
		return nil, fmt.Errorf("正文长度不匹配：声明%d，实际%d", info.BodyLength, len(body))
	}
	if crc := crc32.ChecksumIEEE(body); crc != info.CRC32 {
		return nil, fmt.Errorf("CRC32校验失败：期望0x%08X，实际0x%08X", info.CRC32, crc)
	}
	info.Glyphs = binary.LittleEndian.Uint16(body[0:2])
	info.Style = TextStyle{
		AnimationMode: body[4],
		Speed:         body[5],
		ColorMode:     body[6],
		Color:         RGB{body[7], body[8], body[9]},
		BgMode:        body[10],
		BgColor:       RGB{body[11], body[12], body[13]},
	}
	info.Bitmaps = body[constants.TextMetadataSize:]
	return info, nil
}
