package encoder

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"
)

// 比例排版：画布宽度为前进宽度之和，按16像素切片
func TestRasterize_Proportional(t *testing.T) {
	face := basicfont.Face7x13
	layout := LayoutFor(false, true, 0)

	// 7x13字体每个字符前进7像素，5个字符共35像素，切为3个单元
	assert.Equal(t, 35, MeasureCanvas("HELLO", face, layout))

	bitmaps := Rasterize("HELLO", face, layout)
	cell := constants.SeparatorSize + protocol.GlyphBitmapSize(16, 32)
	require.Len(t, bitmaps, 3*cell)
	assert.Equal(t, 3, protocol.CountGlyphs(bitmaps))
	for i := 0; i < 3; i++ {
		assert.Equal(t, []byte{0x05, 0xff, 0xff, 0xff}, bitmaps[i*cell:i*cell+4])
	}

	// 最后一个单元只有3列有效，右侧补零
	last := bitmaps[2*cell+4:]
	for row := 0; row < 32; row++ {
		assert.Zero(t, last[row*2]&0xf8, "第%d行超出画布的列应为空", row)
		assert.Zero(t, last[row*2+1], "第%d行", row)
	}
}

func TestRasterize_ProportionalSpacing(t *testing.T) {
	layout := LayoutFor(false, true, 2)
	assert.Equal(t, 2*(7+2), MeasureCanvas("AB", basicfont.Face7x13, layout))

	// 不足一个单元时按一个单元计
	assert.Equal(t, 16, MeasureCanvas("A", basicfont.Face7x13, LayoutFor(false, true, 0)))
}

// 紧凑等宽模式：每个字符一个8x16单元，分隔符0x02
func TestRasterize_CompactFixed(t *testing.T) {
	layout := LayoutFor(true, false, 0)
	bitmaps := Rasterize("AB ", basicfont.Face7x13, layout)

	cell := constants.SeparatorSize + protocol.GlyphBitmapSize(8, 16)
	require.Len(t, bitmaps, 3*cell)
	assert.Equal(t, 3, protocol.CountGlyphs(bitmaps))
	assert.Equal(t, []byte{0x02, 0xff, 0xff, 0xff}, bitmaps[:4])

	nonZero := func(b []byte) bool {
		for _, v := range b {
			if v != 0 {
				return true
			}
		}
		return false
	}
	assert.True(t, nonZero(bitmaps[4:cell]), "A应有像素")
	assert.True(t, nonZero(bitmaps[cell+4:2*cell]), "B应有像素")
	assert.False(t, nonZero(bitmaps[2*cell+4:]), "空格应为空白")
}

// 等宽16x32：每个字符一个64字节位图，前置分隔符
func TestRasterize_WideFixed(t *testing.T) {
	bitmaps := Rasterize("AB", basicfont.Face7x13, LayoutFor(false, false, 0))

	require.Len(t, bitmaps, 2*(4+64))
	assert.Equal(t, []byte{0x05, 0xff, 0xff, 0xff}, bitmaps[0:4])
	assert.Equal(t, []byte{0x05, 0xff, 0xff, 0xff}, bitmaps[68:72])
	assert.Equal(t, 2, protocol.CountGlyphs(bitmaps))
}

func TestRasterize_Empty(t *testing.T) {
	for _, proportional := range []bool{true, false} {
		assert.Empty(t, Rasterize("", basicfont.Face7x13, LayoutFor(false, proportional, 0)))
	}
}

func TestTextContent_Encode(t *testing.T) {
	fonts := NewFontResolver(t.TempDir(), "missing.otf")
	style := protocol.DefaultTextStyle()

	t.Run("正常文字", func(t *testing.T) {
		c := &TextContent{Text: "HI", FontSize: 16, Layout: LayoutFor(false, false, 0), Style: style, Fonts: fonts}
		plan, err := c.Encode(context.Background())
		require.NoError(t, err)
		require.Len(t, plan.Steps, 1)
		require.Len(t, plan.Steps[0].Writes, 1)

		info, err := protocol.ParseTextPacket(plan.Steps[0].Writes[0])
		require.NoError(t, err)
		assert.Equal(t, uint16(2), info.Glyphs)
		assert.Equal(t, style, info.Style)
	})

	t.Run("文字包超出长度上限", func(t *testing.T) {
		c := &TextContent{Text: strings.Repeat("A", 1000), Layout: LayoutFor(false, false, 0), Style: style, Fonts: fonts}
		plan, err := c.Encode(context.Background())
		require.Error(t, err)
		assert.Nil(t, plan)
		assert.True(t, apperrors.IsErrCode(err, apperrors.ErrEncodeFailed))
	})

	t.Run("空字符串", func(t *testing.T) {
		c := &TextContent{Text: "", Layout: LayoutFor(false, true, 0), Style: style, Fonts: fonts}
		plan, err := c.Encode(context.Background())
		require.NoError(t, err)

		pkt := plan.Steps[0].Writes[0]
		assert.Len(t, pkt, constants.TextHeaderSize+constants.TextMetadataSize)
		info, err := protocol.ParseTextPacket(pkt)
		require.NoError(t, err)
		assert.Zero(t, info.Glyphs)
	})
}

func TestFontResolver_Fallback(t *testing.T) {
	dir := t.TempDir()
	fonts := NewFontResolver(dir, "default.otf")

	assert.Equal(t, filepath.Join(dir, "default.otf"), fonts.Path(""))
	assert.Equal(t, filepath.Join(dir, "default.otf"), fonts.Path("nope.ttf"))
	assert.Equal(t, basicfont.Face7x13, fonts.Face("nope.ttf", 16))

	_, err := LoadFace(filepath.Join(dir, "nope.ttf"), 16)
	assert.Error(t, err)
}
