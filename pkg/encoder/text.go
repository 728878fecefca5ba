package encoder

import (
	"context"
	"image"
	"unicode/utf8"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// 灰度阈值，抗锯齿边缘按此二值化
const pixelThreshold = 128

// TextLayout 字形单元尺寸与排版方式
type TextLayout struct {
	GlyphWidth   int
	GlyphHeight  int
	Spacing      int
	Proportional bool
}

// LayoutFor 根据紧凑模式返回字形单元：紧凑8x16，否则16x32
func LayoutFor(compact, proportional bool, spacing int) TextLayout {
	l := TextLayout{
		GlyphWidth:   constants.GlyphWidthWide,
		GlyphHeight:  constants.GlyphHeightWide,
		Spacing:      spacing,
		Proportional: proportional,
	}
	if compact {
		l.GlyphWidth = constants.GlyphWidthCompact
		l.GlyphHeight = constants.GlyphHeightCompact
	}
	return l
}

// packCell 将画布上从x0开始的一个字形单元打包为位图
// 逐行存储，行内低位在前，行尾补齐到整字节
func packCell(canvas *image.Gray, x0, width, height int) []byte {
	rowBytes := (width + 7) / 8
	out := make([]byte, rowBytes*height)
	b := canvas.Bounds()
	for y := 0; y < height && y < b.Dy(); y++ {
		for x := 0; x < width; x++ {
			cx := x0 + x
			if cx >= b.Dx() {
				break
			}
			if canvas.GrayAt(cx, y).Y >= pixelThreshold {
				out[y*rowBytes+x/8] |= 1 << uint(x%8)
			}
		}
	}
	return out
}

// baseline 让字体整体在单元内垂直居中的基线位置
func baseline(face font.Face, height int) int {
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	return (height-(ascent+descent))/2 + ascent
}

// advance 单个字符的前进宽度（像素）
func advance(face font.Face, r rune) int {
	adv, ok := face.GlyphAdvance(r)
	if !ok {
		_, adv = font.BoundString(face, string(r))
	}
	return adv.Round()
}

// MeasureCanvas 比例排版时的画布宽度：每个字符的前进宽度加间距之和，至少一个单元宽
func MeasureCanvas(text string, face font.Face, layout TextLayout) int {
	total := 0
	for _, r := range text {
		total += advance(face, r) + layout.Spacing
	}
	if total < layout.GlyphWidth {
		total = layout.GlyphWidth
	}
	return total
}

// Rasterize 将文字渲染为分隔符+位图的字形流
// 空字符串返回空流
func Rasterize(text string, face font.Face, layout TextLayout) []byte {
	if text == "" {
		return nil
	}
	if layout.Proportional {
		return rasterizeProportional(text, face, layout)
	}
	return rasterizeFixed(text, face, layout)
}

// rasterizeFixed 等宽排版：每个字符单独居中到一个单元
func rasterizeFixed(text string, face font.Face, layout TextLayout) []byte {
	w, h := layout.GlyphWidth, layout.GlyphHeight
	sep := protocol.Separator(w)
	out := make([]byte, 0, utf8.RuneCountInString(text)*(len(sep)+protocol.GlyphBitmapSize(w, h)))

	for _, r := range text {
		cell := image.NewGray(image.Rect(0, 0, w, h))
		s := string(r)
		bounds, _ := font.BoundString(face, s)
		bx0, by0 := bounds.Min.X.Floor(), bounds.Min.Y.Floor()
		gw, gh := bounds.Max.X.Ceil()-bx0, bounds.Max.Y.Ceil()-by0

		d := font.Drawer{
			Dst:  cell,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P((w-gw)/2-bx0, (h-gh)/2-by0),
		}
		d.DrawString(s)

		out = append(out, sep...)
		out = append(out, packCell(cell, 0, w, h)...)
	}
	return out
}

// rasterizeProportional 比例排版：整行画在同一基线上，再按单元宽度切片
// 宽字符可跨越单元边界，窄字符共享单元
func rasterizeProportional(text string, face font.Face, layout TextLayout) []byte {
	w, h := layout.GlyphWidth, layout.GlyphHeight
	total := MeasureCanvas(text, face, layout)
	canvas := image.NewGray(image.Rect(0, 0, total, h))

	y := baseline(face, h)
	x := 0
	for _, r := range text {
		d := font.Drawer{
			Dst:  canvas,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(string(r))
		x += advance(face, r) + layout.Spacing
	}

	sep := protocol.Separator(w)
	cells := (total + w - 1) / w
	out := make([]byte, 0, cells*(len(sep)+protocol.GlyphBitmapSize(w, h)))
	for x0 := 0; x0 < total; x0 += w {
		out = append(out, sep...)
		out = append(out, packCell(canvas, x0, w, h)...)
	}
	return out
}

// TextContent 滚动文字
type TextContent struct {
	Text     string
	Font     string
	FontSize float64
	Layout   TextLayout
	Style    protocol.TextStyle
	Fonts    *FontResolver
}

// Kind 实现Content
func (c *TextContent) Kind() Kind { return KindText }

// Encode 实现Content
func (c *TextContent) Encode(ctx context.Context) (*Plan, error) {
	var face font.Face = basicfont.Face7x13
	if c.Fonts != nil {
		face = c.Fonts.Face(c.Font, c.FontSize)
	}
	if closer, ok := face.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	bitmaps := Rasterize(c.Text, face, c.Layout)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pkt, err := protocol.BuildTextPacket(bitmaps, c.Style)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"chars":        utf8.RuneCountInString(c.Text),
		"glyphs":       protocol.CountGlyphs(bitmaps),
		"proportional": c.Layout.Proportional,
		"packetBytes":  len(pkt),
	}).Debug("文字包已生成")

	return &Plan{
		Kind:  KindText,
		Steps: []Step{{Name: "text", Writes: [][]byte{pkt}}},
	}, nil
}
