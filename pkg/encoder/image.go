package encoder

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/disintegration/gift"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DecodeImage 解码静态图片，失败统一返回EncodeFailed
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncodeFailed, "图片解码失败", err)
	}
	if img.Bounds().Empty() {
		return nil, apperrors.New(apperrors.ErrEncodeFailed, "图片尺寸为0")
	}
	return img, nil
}

// ToRGB 将图片缩放到size×size后输出交错RGB字节
// size<=0 时保持原尺寸；缩放使用Lanczos滤波
func ToRGB(img image.Image, size int) []byte {
	bounds := img.Bounds()
	var dst *image.NRGBA

	if size > 0 && (bounds.Dx() != size || bounds.Dy() != size) {
		g := gift.New(gift.Resize(size, size, gift.LanczosResampling))
		dst = image.NewNRGBA(g.Bounds(bounds))
		g.Draw(dst, img)
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	}

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	rgb := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			rgb = append(rgb, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return rgb
}

// EncodeImage 静态图片编码：缩放、转RGB、按类型2分片，槽位0x0d
func EncodeImage(img image.Image, size int, chunkSize int) (*protocol.Payload, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, apperrors.New(apperrors.ErrEncodeFailed, "图片为空")
	}
	rgb := ToRGB(img, size)
	return protocol.Frame(rgb, chunkSize, constants.ContentTypeImage, constants.DefaultInterval, constants.SlotStandalone), nil
}

// ImageContent 静态图片内容
// Raw为true时不缩放，直接按源尺寸转RGB发送
type ImageContent struct {
	Source    []byte
	Size      int
	Raw       bool
	ChunkSize int
}

// Kind 实现Content
func (c *ImageContent) Kind() Kind { return KindImage }

// Encode 实现Content
func (c *ImageContent) Encode(ctx context.Context) (*Plan, error) {
	img, err := DecodeImage(bytes.NewReader(c.Source))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := c.Size
	if c.Raw {
		size = 0
	}
	payload, err := EncodeImage(img, size, c.ChunkSize)
	if err != nil {
		return nil, err
	}
	return payloadPlan(KindImage, "image", payload.Chunks, c.Raw), nil
}
