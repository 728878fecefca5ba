package protocol

import (
	"fmt"
	"hash/crc32"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Payload 一次上传的完整分片序列
type Payload struct {
	ContentType uint8
	SlotIndex   uint8
	Interval    uint8
	TotalSize   uint32
	CRC32       uint32
	Chunks      [][]byte
}

// Len 所有分片（含头）的字节总数
func (p *Payload) Len() int {
	n := 0
	for _, c := range p.Chunks {
		n += len(c)
	}
	return n
}

// Body 按顺序拼接所有分片正文，应与原始负载完全一致
func (p *Payload) Body() []byte {
	body := make([]byte, 0, p.TotalSize)
	for _, c := range p.Chunks {
		if len(c) > constants.ChunkHeaderSize {
			body = append(body, c[constants.ChunkHeaderSize:]...)
		}
	}
	return body
}

// ChunkFramer 分片构建器
// 计算一次CRC32，按chunkSize切分正文，每片前置16字节头
type ChunkFramer struct {
	ChunkSize int

	enableDebugLog bool
}

// NewChunkFramer 创建分片构建器，chunkSize<=0 时使用默认4096
func NewChunkFramer(chunkSize int) *ChunkFramer {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultChunkSize
	}
	// 长度字段只有16位
	if max := 0xffff - constants.ChunkHeaderSize; chunkSize > max {
		chunkSize = max
	}
	return &ChunkFramer{ChunkSize: chunkSize}
}

// Frame 将负载切分为带头分片
// 首片续传标志为0，之后均为2；每片长度字段 = 16 + 正文长度
func (f *ChunkFramer) Frame(payload []byte, contentType uint8, interval uint8, slotIndex uint8) *Payload {
	crc := crc32.ChecksumIEEE(payload)
	tmpl := BuildChunkHeader(contentType, uint32(len(payload)), crc, interval, slotIndex)

	out := &Payload{
		ContentType: contentType,
		SlotIndex:   slotIndex,
		Interval:    interval,
		TotalSize:   uint32(len(payload)),
		CRC32:       crc,
	}

	for offset, i := 0, 0; offset < len(payload); offset, i = offset+f.ChunkSize, i+1 {
		end := offset + f.ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		body := payload[offset:end]

		h := tmpl
		h.ChunkLength = uint16(constants.ChunkHeaderSize + len(body))
		if i > 0 {
			h.Continuation = constants.ContinuationNext
		}

		chunk := make([]byte, constants.ChunkHeaderSize+len(body))
		h.put(chunk)
		copy(chunk[constants.ChunkHeaderSize:], body)
		out.Chunks = append(out.Chunks, chunk)
	}

	if f.enableDebugLog {
		logger.WithFields(logrus.Fields{
			"contentType": fmt.Sprintf("0x%02X", contentType),
			"slotIndex":   fmt.Sprintf("0x%02X", slotIndex),
			"totalSize":   len(payload),
			"crc32":       fmt.Sprintf("0x%08X", crc),
			"chunks":      len(out.Chunks),
		}).Debug("分片构建完成")
	}

	return out
}

// SetDebugLog 设置调试日志开关
func (f *ChunkFramer) SetDebugLog(enabled bool) {
	f.enableDebugLog = enabled
}

// ValidatePayload 校验分片序列的完整性
func ValidatePayload(p *Payload) error {
	if p == nil {
		return fmt.Errorf("负载为空")
	}
	var total uint32
	for i, chunk := range p.Chunks {
		h, err := ParseChunkHeader(chunk)
		if err != nil {
			return fmt.Errorf("分片%d：%w", i, err)
		}
		if int(h.ChunkLength) != len(chunk) {
			return fmt.Errorf("分片%d长度不匹配：声明%d，实际%d", i, h.ChunkLength, len(chunk))
		}
		expectedCont := uint8(constants.ContinuationFirst)
		if i > 0 {
			expectedCont = constants.ContinuationNext
		}
		if h.Continuation != expectedCont {
			return fmt.Errorf("分片%d续传标志错误：期望%d，实际%d", i, expectedCont, h.Continuation)
		}
		if h.TotalSize != p.TotalSize || h.CRC32 != p.CRC32 {
			return fmt.Errorf("分片%d总长度或CRC与负载不一致", i)
		}
		total += uint32(h.BodyLength())
	}
	if total != p.TotalSize {
		return fmt.Errorf("正文总长度不匹配：声明%d，实际%d", p.TotalSize, total)
	}
	if crc := crc32.ChecksumIEEE(p.Body()); crc != p.CRC32 {
		return fmt.Errorf("CRC32校验失败：期望0x%08X，实际0x%08X", p.CRC32, crc)
	}
	return nil
}

// ===== 全局实例和便捷函数 =====

var globalFramer = NewChunkFramer(constants.DefaultChunkSize)

// Frame 使用指定分片大小构建分片（全局便捷函数）
func Frame(payload []byte, chunkSize int, contentType uint8, interval uint8, slotIndex uint8) *Payload {
	if chunkSize <= 0 || chunkSize == globalFramer.ChunkSize {
		return globalFramer.Frame(payload, contentType, interval, slotIndex)
	}
	return NewChunkFramer(chunkSize).Frame(payload, contentType, interval, slotIndex)
}

// EnableFramerDebug 启用全局分片构建器调试日志
func EnableFramerDebug() {
	globalFramer.SetDebugLog(true)
}
