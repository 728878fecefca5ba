package encoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/gif"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/disintegration/gift"
	"github.com/sirupsen/logrus"
)

// GifOptions GIF编码参数
type GifOptions struct {
	Size      int   // 目标边长，<=0 不缩放
	SlotIndex uint8 // 批量槽位或0x0d
	Interval  uint8 // 轮播间隔（秒）
	ChunkSize int
}

var gifMagic = []byte("GIF8")

// DecodeGif 解码全部帧
func DecodeGif(data []byte) (*gif.GIF, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncodeFailed, "GIF解码失败", err)
	}
	if len(g.Image) == 0 {
		return nil, apperrors.New(apperrors.ErrEncodeFailed, "GIF不含任何帧")
	}
	return g, nil
}

// compositeFrames 按处置方式合成每一帧的完整画面
// 画布底色为黑色，点阵屏上透明像素不发光
func compositeFrames(g *gif.GIF) []*image.RGBA {
	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		b := g.Image[0].Bounds()
		width, height = b.Max.X, b.Max.Y
	}
	rect := image.Rect(0, 0, width, height)

	canvas := image.NewRGBA(rect)
	draw.Draw(canvas, rect, image.Black, image.Point{}, draw.Src)

	frames := make([]*image.RGBA, 0, len(g.Image))
	for i, frame := range g.Image {
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.RGBA
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		frames = append(frames, cloneRGBA(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Black, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return frames
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// resizeFrames 最近邻缩放，保持像素画锐利
func resizeFrames(frames []*image.RGBA, size int) []*image.RGBA {
	if size <= 0 {
		return frames
	}
	b := frames[0].Bounds()
	if b.Dx() == size && b.Dy() == size {
		return frames
	}
	g := gift.New(gift.Resize(size, size, gift.NearestNeighborResampling))
	out := make([]*image.RGBA, len(frames))
	for i, f := range frames {
		dst := image.NewRGBA(g.Bounds(f.Bounds()))
		g.Draw(dst, f)
		out[i] = dst
	}
	return out
}

// ReencodeGif 合成、缩放、量化后重新编码为GIF字节
// 所有帧共用首帧生成的调色板，只写全局颜色表；循环次数为0（无限）
func ReencodeGif(ctx context.Context, g *gif.GIF, size int) ([]byte, error) {
	frames := resizeFrames(compositeFrames(g), size)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	palette := MedianCut(frames[0], 256)
	rect := frames[0].Bounds()

	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(frames)),
		Delay:     make([]int, 0, len(frames)),
		Disposal:  make([]byte, 0, len(frames)),
		LoopCount: 0,
		Config: image.Config{
			ColorModel: palette,
			Width:      rect.Dx(),
			Height:     rect.Dy(),
		},
	}

	for i, f := range frames {
		p := image.NewPaletted(rect, palette)
		draw.Draw(p, rect, f, rect.Min, draw.Src)
		out.Image = append(out.Image, p)

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		if delay <= 0 {
			delay = constants.DefaultGifDelayCentis
		}
		out.Delay = append(out.Delay, delay)
		out.Disposal = append(out.Disposal, gif.DisposalBackground)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncodeFailed, "GIF编码失败", err)
	}

	logger.WithFields(logrus.Fields{
		"frames":   len(frames),
		"size":     rect.Dx(),
		"colors":   len(palette),
		"gifBytes": buf.Len(),
	}).Debug("GIF重新编码完成")
	return buf.Bytes(), nil
}

// EncodeGif 处理后的GIF上传：重新编码并按类型1分片
func EncodeGif(ctx context.Context, g *gif.GIF, opts GifOptions) (*protocol.Payload, error) {
	encoded, err := ReencodeGif(ctx, g, opts.Size)
	if err != nil {
		return nil, err
	}
	return protocol.Frame(encoded, opts.ChunkSize, constants.ContentTypeGIF, opts.Interval, opts.SlotIndex), nil
}

// encodeGifData 解码后走EncodeGif
func encodeGifData(ctx context.Context, data []byte, opts GifOptions) (*protocol.Payload, error) {
	g, err := DecodeGif(data)
	if err != nil {
		return nil, err
	}
	return EncodeGif(ctx, g, opts)
}

// FrameRawGif 原样分片，不解码不缩放
// 只检查GIF文件头，内容由调用方保证符合设备尺寸
func FrameRawGif(data []byte, opts GifOptions) (*protocol.Payload, error) {
	if len(data) < len(gifMagic) || !bytes.Equal(data[:len(gifMagic)], gifMagic) {
		return nil, apperrors.New(apperrors.ErrEncodeFailed, "不是有效的GIF文件")
	}
	return protocol.Frame(data, opts.ChunkSize, constants.ContentTypeGIF, opts.Interval, opts.SlotIndex), nil
}

// GifContent 单独上传的GIF
type GifContent struct {
	Data      []byte
	Size      int
	Raw       bool
	Interval  uint8
	ChunkSize int
}

// Kind 实现Content
func (c *GifContent) Kind() Kind { return KindGif }

// Encode 实现Content
func (c *GifContent) Encode(ctx context.Context) (*Plan, error) {
	opts := GifOptions{
		Size:      c.Size,
		SlotIndex: constants.SlotStandalone,
		Interval:  c.Interval,
		ChunkSize: c.ChunkSize,
	}
	var (
		payload *protocol.Payload
		err     error
	)
	if c.Raw {
		payload, err = FrameRawGif(c.Data, opts)
	} else {
		payload, err = encodeGifData(ctx, c.Data, opts)
	}
	if err != nil {
		return nil, err
	}
	return payloadPlan(KindGif, "gif", payload.Chunks, c.Raw), nil
}

// paletteOf 读取已编码GIF的全局调色板，测试和检查工具使用
func paletteOf(data []byte) (color.Palette, error) {
	cfg, err := gif.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	p, _ := cfg.ColorModel.(color.Palette)
	return p, nil
}
