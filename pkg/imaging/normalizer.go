// Package imaging 将用户上传的图片压缩为可以内联存储在记录中的 base64 data URL。
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // 注册解码器
	"image/jpeg"
	_ "image/png" // 注册解码器
	"io"
	"math"
	"strings"

	_ "golang.org/x/image/bmp" // 注册解码器
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册解码器
)

// DataURLPrefix 是输出字符串的固定前缀，可直接用作 <img src>。
const DataURLPrefix = "data:image/jpeg;base64,"

// JPEG 质量从 90 开始，每次降 10，最低 30，最多编码 7 次。
const (
	startQuality = 90
	minQuality   = 30
	qualityStep  = 10
)

var (
	// ErrTooLarge 原始文件超过上传上限，未做任何处理。
	ErrTooLarge = errors.New("image file exceeds the upload size limit")
	// ErrNotAnImage 声明的内容类型不是图片。
	ErrNotAnImage = errors.New("file is not an image")
	// ErrDecode 图片无法解码。
	ErrDecode = errors.New("failed to load image")
	// ErrEncode 压缩时没有产出数据。
	ErrEncode = errors.New("failed to compress image")
	// ErrStillTooLarge 降到最低质量后仍超出预算。
	ErrStillTooLarge = errors.New("image too large even after compression")
)

// Options 控制尺寸上限与字节预算。
type Options struct {
	MaxUploadBytes  int64 // 原始文件上限
	MaxEncodedBytes int   // data URL 的最大长度
	MaxDimension    int   // 长边上限
}

// DefaultOptions 返回 2MB 上传、700KB 输出、1200 像素长边的默认配置。
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes:  2 * 1024 * 1024,
		MaxEncodedBytes: 700 * 1024,
		MaxDimension:    1200,
	}
}

// Upload 描述一次用户选择的文件。
type Upload struct {
	Size        int64
	ContentType string
	Body        io.Reader
}

// EncodedImage 是压缩后的结果。
type EncodedImage struct {
	DataURL string
	JPEG    []byte
	Width   int
	Height  int
	Quality int
}

type encodeFunc func(w io.Writer, img image.Image, o *jpeg.Options) error

// Normalizer 执行 解码 -> 缩放 -> 逐级降质编码 -> 预算检查 的流程。
type Normalizer struct {
	opts   Options
	encode encodeFunc
}

// NewNormalizer 创建 Normalizer，零值字段使用默认配置。
func NewNormalizer(opts Options) *Normalizer {
	def := DefaultOptions()
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = def.MaxUploadBytes
	}
	if opts.MaxEncodedBytes <= 0 {
		opts.MaxEncodedBytes = def.MaxEncodedBytes
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	return &Normalizer{opts: opts, encode: jpeg.Encode}
}

// Options 返回当前生效的配置。
func (n *Normalizer) Options() Options {
	return n.opts
}

// Validate 在读取任何数据之前检查大小和内容类型。
func (n *Normalizer) Validate(up Upload) error {
	if up.Size > n.opts.MaxUploadBytes {
		return ErrTooLarge
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(up.ContentType)), "image/") {
		return ErrNotAnImage
	}
	return nil
}

// Normalize 把上传的图片压缩为不超过预算的 data URL。
func (n *Normalizer) Normalize(up Upload) (*EncodedImage, error) {
	if err := n.Validate(up); err != nil {
		return nil, err
	}

	// 声明的 Size 可能不可信，读取时再限制一次
	raw, err := io.ReadAll(io.LimitReader(up.Body, n.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(len(raw)) > n.opts.MaxUploadBytes {
		return nil, ErrTooLarge
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	width, height := FitWithin(b.Dx(), b.Dy(), n.opts.MaxDimension)
	canvas := render(src, width, height)

	data, quality, err := n.compress(canvas)
	if err != nil {
		return nil, err
	}

	encoded := DataURLPrefix + base64.StdEncoding.EncodeToString(data)
	if len(encoded) > n.opts.MaxEncodedBytes {
		return nil, fmt.Errorf("%w: %d bytes at quality %d", ErrStillTooLarge, len(encoded), quality)
	}

	return &EncodedImage{
		DataURL: encoded,
		JPEG:    data,
		Width:   width,
		Height:  height,
		Quality: quality,
	}, nil
}

// compress 从最高质量开始编码，超出预算且质量仍高于下限时逐级降低。
func (n *Normalizer) compress(img image.Image) ([]byte, int, error) {
	var buf bytes.Buffer
	quality := startQuality
	for {
		buf.Reset()
		if err := n.encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, quality, fmt.Errorf("%w: %v", ErrEncode, err)
		}
		if buf.Len() == 0 {
			return nil, quality, ErrEncode
		}
		if EncodedLen(buf.Len()) <= n.opts.MaxEncodedBytes || quality <= minQuality {
			break
		}
		quality -= qualityStep
	}
	return bytes.Clone(buf.Bytes()), quality, nil
}

// EncodedLen 返回 n 字节 JPEG 转为 data URL 后的长度。
func EncodedLen(n int) int {
	return len(DataURLPrefix) + base64.StdEncoding.EncodedLen(n)
}

// FitWithin 等比缩放使长边不超过 limit，不放大。
func FitWithin(width, height, limit int) (int, int) {
	if width <= limit && height <= limit {
		return width, height
	}
	ratio := math.Min(float64(limit)/float64(width), float64(limit)/float64(height))
	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// render 把图片绘制到目标尺寸的画布上。透明区域填白，避免 JPEG 中变黑。
func render(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
