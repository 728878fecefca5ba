package encoder

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// FontResolver 按名称查找字体文件并创建字形
// 解析后的字体数据可并发共享；font.Face 不是并发安全的，每次渲染单独创建
type FontResolver struct {
	Dir         string
	DefaultName string

	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

// NewFontResolver 创建字体解析器
func NewFontResolver(dir, defaultName string) *FontResolver {
	return &FontResolver{
		Dir:         dir,
		DefaultName: defaultName,
		fonts:       make(map[string]*opentype.Font),
	}
}

// Path 解析字体路径：绝对路径或存在的相对路径直接使用，否则在字体目录中查找
// 找不到时返回默认字体路径
func (r *FontResolver) Path(name string) string {
	if name != "" {
		if fileExists(name) {
			return name
		}
		if p := filepath.Join(r.Dir, name); fileExists(p) {
			return p
		}
		logger.Warnf("字体 %s 不存在，使用默认字体", name)
	}
	return filepath.Join(r.Dir, r.DefaultName)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func (r *FontResolver) load(path string) (*opentype.Font, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.fonts[path]; ok {
		return f, nil
	}
	f, err := parseFontFile(path)
	if err != nil {
		return nil, err
	}
	r.fonts[path] = f
	return f, nil
}

func parseFontFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return opentype.Parse(data)
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// LoadFace 直接从字体文件创建字形，不做回退
func LoadFace(path string, size float64) (font.Face, error) {
	f, err := parseFontFile(path)
	if err != nil {
		return nil, err
	}
	return newFace(f, size)
}

// Face 创建指定大小的字形；字体文件不可用时回退到内置7x13点阵字体
func (r *FontResolver) Face(name string, size float64) font.Face {
	path := r.Path(name)
	f, err := r.load(path)
	if err != nil {
		logger.Warnf("加载字体 %s 失败，使用内置字体: %v", path, err)
		return basicfont.Face7x13
	}
	face, err := newFace(f, size)
	if err != nil {
		logger.Warnf("创建字形 %s 失败，使用内置字体: %v", path, err)
		return basicfont.Face7x13
	}
	return face
}
