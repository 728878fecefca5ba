package encoder

import (
	"bytes"
	"context"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 重新编码后所有帧共用全局调色板，尺寸、循环和延迟符合设备要求
func TestReencodeGif_SharedPalette(t *testing.T) {
	src, err := DecodeGif(gifBytes(t, 64, red, blue, green))
	require.NoError(t, err)

	out, err := ReencodeGif(context.Background(), src, 32)
	require.NoError(t, err)

	global, err := paletteOf(out)
	require.NoError(t, err)
	require.NotEmpty(t, global)
	assert.LessOrEqual(t, len(global), 256)

	decoded, err := gif.DecodeAll(bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, decoded.Image, 3)
	assert.Equal(t, 32, decoded.Config.Width)
	assert.Equal(t, 32, decoded.Config.Height)
	assert.Equal(t, 0, decoded.LoopCount, "应无限循环")

	for i, frame := range decoded.Image {
		assert.Equal(t, global, frame.Palette, "第%d帧不应带局部颜色表", i)
		assert.Equal(t, constants.DefaultGifDelayCentis, decoded.Delay[i])
		assert.Equal(t, image.Rect(0, 0, 32, 32), frame.Bounds())
	}

	// 首帧纯红，调色板来自首帧
	r, g, b, _ := decoded.Image[0].At(5, 5).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})
}

func TestReencodeGif_KeepsDelay(t *testing.T) {
	src, err := DecodeGif(gifBytes(t, 16, red, green))
	require.NoError(t, err)
	src.Delay = []int{25, 0}

	out, err := ReencodeGif(context.Background(), src, 16)
	require.NoError(t, err)

	decoded, err := gif.DecodeAll(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, []int{25, constants.DefaultGifDelayCentis}, decoded.Delay)
	assert.Equal(t, []byte{gif.DisposalBackground, gif.DisposalBackground}, decoded.Disposal)
}

// 子区域帧按处置方式叠加到画布上
func TestCompositeFrames_Disposal(t *testing.T) {
	full := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{red, blue})
	patch := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{blue, red})

	t.Run("不处置", func(t *testing.T) {
		g := &gif.GIF{
			Image:    []*image.Paletted{full, patch},
			Delay:    []int{10, 10},
			Disposal: []byte{gif.DisposalNone, gif.DisposalNone},
			Config:   image.Config{Width: 4, Height: 4},
		}
		frames := compositeFrames(g)
		require.Len(t, frames, 2)
		assert.Equal(t, blue, frames[1].RGBAAt(0, 0))
		assert.Equal(t, red, frames[1].RGBAAt(3, 3), "补丁外保留上一帧")
	})

	t.Run("恢复背景", func(t *testing.T) {
		g := &gif.GIF{
			Image:    []*image.Paletted{full, patch},
			Delay:    []int{10, 10},
			Disposal: []byte{gif.DisposalBackground, gif.DisposalNone},
			Config:   image.Config{Width: 4, Height: 4},
		}
		frames := compositeFrames(g)
		assert.Equal(t, color.RGBA{A: 0xff}, frames[1].RGBAAt(3, 3), "背景为黑色")
	})

	t.Run("恢复上一帧", func(t *testing.T) {
		g := &gif.GIF{
			Image:    []*image.Paletted{full, patch, patch},
			Delay:    []int{10, 10, 10},
			Disposal: []byte{gif.DisposalNone, gif.DisposalPrevious, gif.DisposalNone},
			Config:   image.Config{Width: 4, Height: 4},
		}
		frames := compositeFrames(g)
		require.Len(t, frames, 3)
		assert.Equal(t, blue, frames[1].RGBAAt(0, 0))
		assert.Equal(t, blue, frames[2].RGBAAt(0, 0))
		assert.Equal(t, red, frames[2].RGBAAt(2, 2))
	})
}

func TestDecodeGif_Invalid(t *testing.T) {
	_, err := DecodeGif([]byte("GIF89a broken"))
	require.Error(t, err)
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrEncodeFailed))
}

// 原始GIF逐字节分片，正文与文件一致
func TestFrameRawGif_Verbatim(t *testing.T) {
	data := gifBytes(t, 32, red, green, blue)
	payload, err := FrameRawGif(data, GifOptions{SlotIndex: 4, Interval: 9, ChunkSize: 64})
	require.NoError(t, err)

	assert.Equal(t, data, payload.Body())
	assert.Equal(t, uint32(len(data)), payload.TotalSize)
	assert.Equal(t, crc32.ChecksumIEEE(data), payload.CRC32)
	for _, chunk := range payload.Chunks {
		h, err := protocol.ParseChunkHeader(chunk)
		require.NoError(t, err)
		assert.Equal(t, uint8(constants.ContentTypeGIF), h.ContentType)
		assert.Equal(t, uint8(4), h.SlotIndex)
		assert.Equal(t, uint8(9), h.Interval)
	}
}

func TestFrameRawGif_NotGif(t *testing.T) {
	_, err := FrameRawGif([]byte{0x89, 'P', 'N', 'G'}, GifOptions{})
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrEncodeFailed))
}

func TestGifContent_Encode(t *testing.T) {
	data := gifBytes(t, 16, red)

	plan, err := (&GifContent{Data: data, Size: 32, Interval: 5}).Encode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindGif, plan.Kind)
	assert.False(t, plan.Steps[0].WaitForAck)

	h, err := protocol.ParseChunkHeader(plan.Steps[0].Writes[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(constants.SlotStandalone), h.SlotIndex)

	raw, err := (&GifContent{Data: data, Raw: true, Interval: 5}).Encode(context.Background())
	require.NoError(t, err)
	assert.True(t, raw.Steps[0].WaitForAck)
	assert.Equal(t, len(data)+constants.ChunkHeaderSize, raw.Bytes())
}
