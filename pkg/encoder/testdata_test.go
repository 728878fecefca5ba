package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidFrame(w, h int, c color.Color) *image.Paletted {
	p := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{c, color.Black})
	// 索引0即纯色
	return p
}

// gifBytes 生成每帧纯色的测试GIF，各帧使用自己的局部调色板
func gifBytes(t *testing.T, size int, colors ...color.Color) []byte {
	t.Helper()
	g := &gif.GIF{LoopCount: 0}
	for _, c := range colors {
		g.Image = append(g.Image, solidFrame(size, size, c))
		g.Delay = append(g.Delay, 0)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
)
