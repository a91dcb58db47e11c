package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientPNG 生成一张压缩率很高的灰度渐变 PNG。
func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / w)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// noisePNG 生成一张几乎无法压缩的随机噪声 PNG。
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type countingReader struct {
	reads int
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.reads++
	return 0, io.EOF
}

func pngUpload(data []byte) Upload {
	return Upload{Size: int64(len(data)), ContentType: "image/png", Body: bytes.NewReader(data)}
}

func decodeDataURL(t *testing.T, dataURL string) image.Image {
	t.Helper()
	require.True(t, strings.HasPrefix(dataURL, DataURLPrefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, DataURLPrefix))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestNormalize_RejectsOversizeBeforeReading(t *testing.T) {
	n := NewNormalizer(DefaultOptions())
	body := &countingReader{}

	_, err := n.Normalize(Upload{Size: 5 * 1024 * 1024, ContentType: "image/jpeg", Body: body})

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Zero(t, body.reads)
}

func TestNormalize_RejectsNonImage(t *testing.T) {
	n := NewNormalizer(DefaultOptions())
	body := &countingReader{}

	_, err := n.Normalize(Upload{Size: 10, ContentType: "application/pdf", Body: body})

	assert.ErrorIs(t, err, ErrNotAnImage)
	assert.Zero(t, body.reads)
}

func TestNormalize_RejectsBodyLargerThanDeclared(t *testing.T) {
	n := NewNormalizer(Options{MaxUploadBytes: 1024})
	body := bytes.NewReader(make([]byte, 4096))

	_, err := n.Normalize(Upload{Size: 10, ContentType: "image/png", Body: body})

	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestNormalize_DecodeError(t *testing.T) {
	n := NewNormalizer(DefaultOptions())

	_, err := n.Normalize(Upload{Size: 12, ContentType: "image/png", Body: strings.NewReader("not an image")})

	assert.ErrorIs(t, err, ErrDecode)
}

func TestNormalize_DownscalesLargeImage(t *testing.T) {
	data := gradientPNG(t, 4000, 3000)
	n := NewNormalizer(DefaultOptions())

	out, err := n.Normalize(pngUpload(data))
	require.NoError(t, err)

	assert.Equal(t, 1200, out.Width)
	assert.Equal(t, 900, out.Height)
	assert.LessOrEqual(t, len(out.DataURL), 700*1024)
	assert.Equal(t, 90, out.Quality)

	img := decodeDataURL(t, out.DataURL)
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 900, img.Bounds().Dy())
}

func TestNormalize_NeverUpscales(t *testing.T) {
	data := gradientPNG(t, 300, 200)
	n := NewNormalizer(DefaultOptions())

	out, err := n.Normalize(pngUpload(data))
	require.NoError(t, err)

	assert.Equal(t, 300, out.Width)
	assert.Equal(t, 200, out.Height)
}

func TestNormalize_StillTooLarge(t *testing.T) {
	data := noisePNG(t, 200, 200)
	n := NewNormalizer(Options{MaxEncodedBytes: 1000})

	out, err := n.Normalize(pngUpload(data))

	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrStillTooLarge)
}

func TestNormalize_QualityStepsDownToFloor(t *testing.T) {
	data := gradientPNG(t, 64, 64)
	n := NewNormalizer(Options{MaxEncodedBytes: 100})
	var qualities []int
	n.encode = func(w io.Writer, img image.Image, o *jpeg.Options) error {
		qualities = append(qualities, o.Quality)
		_, err := w.Write(make([]byte, 1000))
		return err
	}

	_, err := n.Normalize(pngUpload(data))

	assert.ErrorIs(t, err, ErrStillTooLarge)
	assert.Equal(t, []int{90, 80, 70, 60, 50, 40, 30}, qualities)
}

func TestNormalize_StopsOnceWithinBudget(t *testing.T) {
	data := gradientPNG(t, 64, 64)
	// 质量 q 时输出 q*100 字节，预算恰好容纳 6000 字节
	n := NewNormalizer(Options{MaxEncodedBytes: EncodedLen(6000)})
	var qualities []int
	n.encode = func(w io.Writer, img image.Image, o *jpeg.Options) error {
		qualities = append(qualities, o.Quality)
		_, err := w.Write(bytes.Repeat([]byte{0xAB}, o.Quality*100))
		return err
	}

	out, err := n.Normalize(pngUpload(data))
	require.NoError(t, err)

	assert.Equal(t, []int{90, 80, 70, 60}, qualities)
	assert.Equal(t, 60, out.Quality)
	assert.Len(t, out.DataURL, EncodedLen(6000))
}

func TestNormalize_EmptyEncoderOutput(t *testing.T) {
	data := gradientPNG(t, 32, 32)
	n := NewNormalizer(DefaultOptions())
	n.encode = func(w io.Writer, img image.Image, o *jpeg.Options) error { return nil }

	_, err := n.Normalize(pngUpload(data))

	assert.ErrorIs(t, err, ErrEncode)
}

func TestNormalize_TransparentPixelsBecomeWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	n := NewNormalizer(DefaultOptions())

	out, err := n.Normalize(pngUpload(buf.Bytes()))
	require.NoError(t, err)

	r, g, b, _ := decodeDataURL(t, out.DataURL).At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 4000, 3000, 1200, 900},
		{"portrait", 3000, 4000, 900, 1200},
		{"exact_limit", 1200, 1200, 1200, 1200},
		{"small", 640, 480, 640, 480},
		{"wide_strip", 2400, 100, 1200, 50},
		{"tall_strip", 100, 5000, 24, 1200},
		{"degenerate", 1, 3000, 1, 1200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitWithin(tt.w, tt.h, 1200)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.LessOrEqual(t, w, tt.w)
			assert.LessOrEqual(t, h, tt.h)
		})
	}
}
