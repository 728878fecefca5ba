package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
)

// ChunkHeader 图片/GIF共用的16字节分片头
//
// 布局（小端序）：
//
//	[0:2]   ChunkLength   分片长度 = 16 + 正文长度
//	[2]     ContentType   1=GIF 2=图片
//	[3]     保留 0
//	[4]     Continuation  0=首片 2=续片
//	[5:9]   TotalSize     未分片负载总长度
//	[9:13]  CRC32         整个负载的CRC32，每个分片重复
//	[13]    Interval      轮播间隔（秒）
//	[14]    保留 0
//	[15]    SlotIndex     0~11 批量槽位，0x0d 单独上传
type ChunkHeader struct {
	ChunkLength  uint16
	ContentType  uint8
	Continuation uint8
	TotalSize    uint32
	CRC32        uint32
	Interval     uint8
	SlotIndex    uint8
}

// BuildChunkHeader 构建分片头模板，长度字段保留占位值，由分片时逐片填写
func BuildChunkHeader(contentType uint8, totalSize uint32, crc uint32, interval uint8, slotIndex uint8) ChunkHeader {
	return ChunkHeader{
		ChunkLength:  constants.ChunkLengthPlaceholder,
		ContentType:  contentType,
		Continuation: constants.ContinuationFirst,
		TotalSize:    totalSize,
		CRC32:        crc,
		Interval:     interval,
		SlotIndex:    slotIndex,
	}
}

// Marshal 序列化为16字节
func (h ChunkHeader) Marshal() []byte {
	buf := make([]byte, constants.ChunkHeaderSize)
	h.put(buf)
	return buf
}

func (h ChunkHeader) put(buf []byte) {
	binary.LittleEndian.PutUint16(buf[constants.ChunkLengthPos:], h.ChunkLength)
	buf[constants.ContentTypePos] = h.ContentType
	buf[3] = 0
	buf[constants.ContinuationPos] = h.Continuation
	binary.LittleEndian.PutUint32(buf[constants.TotalSizePos:], h.TotalSize)
	binary.LittleEndian.PutUint32(buf[constants.CRC32Pos:], h.CRC32)
	buf[constants.IntervalPos] = h.Interval
	buf[14] = 0
	buf[constants.SlotIndexPos] = h.SlotIndex
}

// IsContinuation 是否为续片
func (h ChunkHeader) IsContinuation() bool {
	return h.Continuation == constants.ContinuationNext
}

// BodyLength 分片正文长度
func (h ChunkHeader) BodyLength() int {
	return int(h.ChunkLength) - constants.ChunkHeaderSize
}

// ParseChunkHeader 从分片数据中解析分片头
func ParseChunkHeader(data []byte) (ChunkHeader, error) {
	if len(data) < constants.ChunkHeaderSize {
		return ChunkHeader{}, fmt.Errorf("分片长度不足：%d，最小需要：%d", len(data), constants.ChunkHeaderSize)
	}
	h := ChunkHeader{
		ChunkLength:  binary.LittleEndian.Uint16(data[constants.ChunkLengthPos:]),
		ContentType:  data[constants.ContentTypePos],
		Continuation: data[constants.ContinuationPos],
		TotalSize:    binary.LittleEndian.Uint32(data[constants.TotalSizePos:]),
		CRC32:        binary.LittleEndian.Uint32(data[constants.CRC32Pos:]),
		Interval:     data[constants.IntervalPos],
		SlotIndex:    data[constants.SlotIndexPos],
	}
	return h, nil
}
