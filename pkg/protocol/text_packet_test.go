package protocol

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func glyphStream(n int, sep []byte, size int, fill byte) []byte {
	var buf []byte
	for i := 0; i < n; i++ {
		buf = append(buf, sep...)
		buf = append(buf, bytes.Repeat([]byte{fill}, size)...)
	}
	return buf
}

func TestBuildTextPacket_Layout(t *testing.T) {
	bitmaps := glyphStream(2, Separator(16), 64, 0x0f)
	style := TextStyle{AnimationMode: 1, Speed: 95, ColorMode: 1, Color: RGB{255, 0, 0}, BgMode: 0, BgColor: RGB{0, 255, 0}}

	pkt, err := BuildTextPacket(bitmaps, style)
	require.NoError(t, err)

	bodyLen := 14 + len(bitmaps)
	require.Len(t, pkt, 16+bodyLen)
	assert.Equal(t, uint16(16+bodyLen), binary.LittleEndian.Uint16(pkt[0:2]))
	assert.Equal(t, byte(0x03), pkt[2])
	assert.Equal(t, []byte{0, 0}, pkt[3:5])
	assert.Equal(t, uint32(bodyLen), binary.LittleEndian.Uint32(pkt[5:9]))
	assert.Equal(t, crc32.ChecksumIEEE(pkt[16:]), binary.LittleEndian.Uint32(pkt[9:13]))
	assert.Equal(t, []byte{0, 0, 0x0c}, pkt[13:16])

	meta := pkt[16:30]
	assert.Equal(t, []byte{2, 0, 0, 1, 1, 95, 1, 255, 0, 0, 0, 0, 255, 0}, meta)
	assert.Equal(t, bitmaps, pkt[30:])
}

func TestBuildTextPacket_Empty(t *testing.T) {
	pkt, err := BuildTextPacket(nil, DefaultTextStyle())
	require.NoError(t, err)
	info, err := ParseTextPacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), info.Glyphs)
	assert.Empty(t, info.Bitmaps)
	assert.Len(t, pkt, 30)
}

func TestBuildTextPacket_TooLong(t *testing.T) {
	style := DefaultTextStyle()

	// 1000个16x32字形：16+14+1000*68 = 68030 字节，超出u16
	_, err := BuildTextPacket(glyphStream(1000, Separator(16), 64, 0x0f), style)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrEncodeFailed))

	// 刚好到上限的最大字形数仍可编码
	maxGlyphs := (constants.MaxTextPacketSize - 30) / 68
	pkt, err := BuildTextPacket(glyphStream(maxGlyphs, Separator(16), 64, 0x0f), style)
	require.NoError(t, err)
	info, err := ParseTextPacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(maxGlyphs), info.Glyphs)
	assert.Equal(t, len(pkt), int(info.TotalLength))
}

func TestCountGlyphs(t *testing.T) {
	t.Run("宽字形", func(t *testing.T) {
		assert.Equal(t, 3, CountGlyphs(glyphStream(3, Separator(16), 64, 0)))
	})
	t.Run("紧凑字形", func(t *testing.T) {
		assert.Equal(t, 4, CountGlyphs(glyphStream(4, Separator(8), 16, 0)))
	})
	t.Run("位图内容与分隔符相同不误计", func(t *testing.T) {
		bitmap := bytes.Repeat([]byte{0x05, 0xff, 0xff, 0xff}, 16)
		stream := append(Separator(16), bitmap...)
		assert.Equal(t, 1, CountGlyphs(stream))
	})
	t.Run("空", func(t *testing.T) {
		assert.Equal(t, 0, CountGlyphs(nil))
	})
}

func TestParseTextPacket_RoundTrip(t *testing.T) {
	bitmaps := glyphStream(1, Separator(8), 16, 0x55)
	style := DefaultTextStyle()
	style.Speed = 40
	pkt, err := BuildTextPacket(bitmaps, style)
	require.NoError(t, err)

	info, err := ParseTextPacket(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), info.Glyphs)
	assert.Equal(t, style, info.Style)

	pkt[len(pkt)-1] ^= 0xff
	_, err = ParseTextPacket(pkt)
	assert.Error(t, err, "CRC错误应该解析失败")
}

func TestSeparator(t *testing.T) {
	assert.Equal(t, []byte{0x05, 0xff, 0xff, 0xff}, Separator(16))
	assert.Equal(t, []byte{0x02, 0xff, 0xff, 0xff}, Separator(8))
	assert.Equal(t, 64, GlyphBitmapSize(16, 32))
	assert.Equal(t, 16, GlyphBitmapSize(8, 16))
}
