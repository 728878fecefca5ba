package encoder

import (
	"image"
	"image/color"
	"sort"
)

// colorCount 调色板统计用的颜色及其像素数
type colorCount struct {
	r, g, b uint8
	n       int
}

// colorBox 中位切分的一个颜色盒
type colorBox struct {
	colors []colorCount
	total  int
}

// channelRange 返回盒内跨度最大的通道及其跨度
func (b *colorBox) channelRange() (channel int, span int) {
	minC := [3]int{255, 255, 255}
	maxC := [3]int{}
	for _, c := range b.colors {
		v := [3]int{int(c.r), int(c.g), int(c.b)}
		for i := 0; i < 3; i++ {
			if v[i] < minC[i] {
				minC[i] = v[i]
			}
			if v[i] > maxC[i] {
				maxC[i] = v[i]
			}
		}
	}
	for i := 0; i < 3; i++ {
		if s := maxC[i] - minC[i]; s > span {
			channel, span = i, s
		}
	}
	return channel, span
}

// split 沿最宽通道按像素数中位数切分
func (b *colorBox) split() (*colorBox, *colorBox) {
	channel, _ := b.channelRange()
	sort.SliceStable(b.colors, func(i, j int) bool {
		return channelValue(b.colors[i], channel) < channelValue(b.colors[j], channel)
	})

	half := b.total / 2
	acc, cut := 0, 1
	for i, c := range b.colors[:len(b.colors)-1] {
		acc += c.n
		cut = i + 1
		if acc >= half {
			break
		}
	}

	left := &colorBox{colors: b.colors[:cut]}
	right := &colorBox{colors: b.colors[cut:]}
	for _, c := range left.colors {
		left.total += c.n
	}
	right.total = b.total - left.total
	return left, right
}

// average 盒内按像素数加权的平均色
func (b *colorBox) average() color.Color {
	var r, g, bl int
	for _, c := range b.colors {
		r += int(c.r) * c.n
		g += int(c.g) * c.n
		bl += int(c.b) * c.n
	}
	t := b.total
	return color.RGBA{
		R: uint8((r + t/2) / t),
		G: uint8((g + t/2) / t),
		B: uint8((bl + t/2) / t),
		A: 0xff,
	}
}

func channelValue(c colorCount, channel int) uint8 {
	switch channel {
	case 0:
		return c.r
	case 1:
		return c.g
	}
	return c.b
}

// MedianCut 对图片做中位切分量化，返回最多maxColors种不透明颜色
// 颜色数不超过上限时直接返回全部颜色；同一输入总是得到同一调色板
func MedianCut(img image.Image, maxColors int) color.Palette {
	if maxColors <= 0 {
		maxColors = 256
	}

	counts := make(map[uint32]int)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			counts[uint32(c.R)<<16|uint32(c.G)<<8|uint32(c.B)]++
		}
	}

	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	colors := make([]colorCount, 0, len(keys))
	total := 0
	for _, k := range keys {
		n := counts[k]
		colors = append(colors, colorCount{r: uint8(k >> 16), g: uint8(k >> 8), b: uint8(k), n: n})
		total += n
	}

	if len(colors) <= maxColors {
		palette := make(color.Palette, 0, len(colors))
		for _, c := range colors {
			palette = append(palette, color.RGBA{R: c.r, G: c.g, B: c.b, A: 0xff})
		}
		return palette
	}

	boxes := []*colorBox{{colors: colors, total: total}}
	for len(boxes) < maxColors {
		// 选择跨度最大的可切分盒
		idx, best := -1, -1
		for i, b := range boxes {
			if len(b.colors) < 2 {
				continue
			}
			if _, span := b.channelRange(); span > best {
				idx, best = i, span
			}
		}
		if idx < 0 {
			break
		}
		left, right := boxes[idx].split()
		boxes[idx] = left
		boxes = append(boxes, right)
	}

	palette := make(color.Palette, 0, len(boxes))
	for _, b := range boxes {
		palette = append(palette, b.average())
	}
	return palette
}
