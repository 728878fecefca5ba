package encoder

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianCut_FewColors(t *testing.T) {
	img := solidImage(4, 4, red)
	img.Set(0, 0, blue)

	p := MedianCut(img, 256)
	assert.Len(t, p, 2)
	assert.Contains(t, p, color.Color(color.RGBA{R: 0xff, A: 0xff}))
	assert.Contains(t, p, color.Color(color.RGBA{B: 0xff, A: 0xff}))
}

func TestMedianCut_Reduces(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x + y) * 2), A: 0xff})
		}
	}

	p := MedianCut(img, 16)
	assert.Len(t, p, 16)
	for _, c := range p {
		_, _, _, a := c.RGBA()
		assert.Equal(t, uint32(0xffff), a)
	}

	// 相同输入得到相同调色板
	assert.Equal(t, p, MedianCut(img, 16))
}
