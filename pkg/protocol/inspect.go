package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
)

// FrameKind 抓包数据的类型判断结果
type FrameKind string

const (
	FrameKindChunk   FrameKind = "chunk"
	FrameKindText    FrameKind = "text"
	FrameKindCommand FrameKind = "command"
	FrameKindUnknown FrameKind = "unknown"
)

var knownCommands = map[string][]byte{
	"batch_enable": BuildBatchEnable(),
}

// ClassifyFrame 根据头部特征判断一段写入数据的类型
func ClassifyFrame(data []byte) FrameKind {
	if len(data) < 4 {
		return FrameKindUnknown
	}
	declared := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) >= constants.ChunkHeaderSize {
		switch data[constants.ContentTypePos] {
		case constants.ContentTypeGIF, constants.ContentTypeImage:
			// 批量头的[3]为0x01，分片头的[3]为保留0
			if declared == len(data) && data[3] == 0 {
				return FrameKindChunk
			}
		case constants.ContentTypeText:
			if data[15] == constants.TextTrailerByte && declared == len(data) {
				return FrameKindText
			}
		}
	}
	if declared == len(data) {
		return FrameKindCommand
	}
	return FrameKindUnknown
}

// DescribeFrame 获取写入数据的可读信息（用于调试和抓包分析）
func DescribeFrame(data []byte) map[string]interface{} {
	info := map[string]interface{}{
		"length": len(data),
		"kind":   string(ClassifyFrame(data)),
	}

	switch ClassifyFrame(data) {
	case FrameKindChunk:
		h, _ := ParseChunkHeader(data)
		info["chunkLength"] = h.ChunkLength
		info["contentType"] = contentTypeName(h.ContentType)
		info["continuation"] = h.IsContinuation()
		info["totalSize"] = h.TotalSize
		info["crc32"] = fmt.Sprintf("0x%08X", h.CRC32)
		info["interval"] = h.Interval
		info["slotIndex"] = fmt.Sprintf("0x%02X", h.SlotIndex)
		info["bodyLength"] = h.BodyLength()
	case FrameKindText:
		t, err := ParseTextPacket(data)
		if err != nil {
			info["error"] = err.Error()
			break
		}
		info["glyphs"] = t.Glyphs
		info["animationMode"] = t.Style.AnimationMode
		info["speed"] = t.Style.Speed
		info["colorMode"] = t.Style.ColorMode
		info["color"] = fmt.Sprintf("#%02X%02X%02X", t.Style.Color.R, t.Style.Color.G, t.Style.Color.B)
		info["crc32"] = fmt.Sprintf("0x%08X", t.CRC32)
	case FrameKindCommand:
		info["command"] = commandName(data)
	}
	return info
}

func contentTypeName(t uint8) string {
	switch t {
	case constants.ContentTypeGIF:
		return "gif"
	case constants.ContentTypeImage:
		return "image"
	case constants.ContentTypeText:
		return "text"
	}
	return fmt.Sprintf("0x%02X", t)
}

func commandName(data []byte) string {
	for name, cmd := range knownCommands {
		if bytes.Equal(cmd, data) {
			return name
		}
	}
	if len(data) >= 5 && data[2] == 0x02 && data[3] == 0x01 && int(data[4]) == len(data)-5 {
		return "batch_header"
	}
	if len(data) == 5 {
		switch {
		case data[2] == 0x04 && data[3] == 0x01:
			return "set_draw_mode"
		case data[2] == 0x04 && data[3] == 0x80:
			return "brightness"
		case data[2] == 0x07 && data[3] == 0x01:
			return "screen_power"
		}
	}
	if len(data) == 8 && data[2] == 0x06 && data[3] == 0x01 {
		return "clock"
	}
	return "unknown"
}
