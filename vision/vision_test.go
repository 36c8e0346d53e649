package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnnbench/cnnbench/ml"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want Format
	}{
		"jpeg":       {[]byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		"png":        {[]byte{0x89, 'P', 'N', 'G', 0x0D}, FormatPNG},
		"webp":       {[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
		"riff wav":   {[]byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatUnknown},
		"short riff": {[]byte("RIFF"), FormatUnknown},
		"empty":      {nil, FormatUnknown},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
	assert.Equal(t, "image/webp", FormatWebP.MimeType())
	assert.Equal(t, "application/octet-stream", FormatUnknown.MimeType())
}

func TestDecode(t *testing.T) {
	img, err := Decode(solidPNG(t, 100, 50, color.RGBA{255, 0, 0, 255}))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Width())
	assert.Equal(t, 50, img.Height())
	assert.Equal(t, FormatPNG, img.Format)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, img.RGBAAt(10, 10))

	_, err = Decode([]byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Decode([]byte{0x89, 'P', 'N', 'G', 0, 0})
	assert.Error(t, err)
}

func TestDecodeTransparent(t *testing.T) {
	img, err := DecodeReader(bytes.NewReader(solidPNG(t, 4, 4, color.NRGBA{0, 0, 0, 0})))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradient.jpg")
	require.NoError(t, os.WriteFile(path, EncodeJPEG(Gradient(64, 48, 1)), 0o644))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, img.Format)
	assert.Equal(t, 64, img.Width())

	_, err = Load(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestResizeAndCrop(t *testing.T) {
	img := Gradient(300, 200, 1)

	resized, err := Resize(img, 50, 40)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 40), resized.Bounds())

	_, err = Resize(img, 0, 10)
	assert.Error(t, err)

	shorter, err := ResizeShorter(img, 100)
	require.NoError(t, err)
	assert.Equal(t, 150, shorter.Width())
	assert.Equal(t, 100, shorter.Height())

	crop, err := CenterCrop(img, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, img.RGBAAt(100, 50), crop.RGBAAt(0, 0))

	_, err = CenterCrop(img, 400, 100)
	assert.Error(t, err)

	pre, err := Preprocess(img, 224)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 224, 224), pre.Bounds())
}

func TestNormalize(t *testing.T) {
	img, err := Decode(solidPNG(t, 2, 2, color.RGBA{255, 0, 128, 255}))
	require.NoError(t, err)

	want := [3]float32{
		(1 - ImageNetMean[0]) / ImageNetStd[0],
		(0 - ImageNetMean[1]) / ImageNetStd[1],
		(128.0/255 - ImageNetMean[2]) / ImageNetStd[2],
	}

	chw := make([]float32, 12)
	Normalize(chw, img, ImageNetMean, ImageNetStd, ml.NCHW)
	for c := range 3 {
		for i := range 4 {
			assert.InDelta(t, want[c], chw[c*4+i], 1e-6)
		}
	}

	hwc := make([]float32, 12)
	Normalize(hwc, img, ImageNetMean, ImageNetStd, ml.NHWC)
	for i := range 4 {
		for c := range 3 {
			assert.InDelta(t, want[c], hwc[i*3+c], 1e-6)
		}
	}
}

func TestBatch(t *testing.T) {
	x, err := Synthetic(3, 16, 7, ml.NCHW)
	require.NoError(t, err)
	assert.Equal(t, ml.Shape{3, 3, 16, 16}, x.Shape)

	y, err := Synthetic(3, 16, 7, ml.NHWC)
	require.NoError(t, err)
	assert.Equal(t, ml.Shape{3, 16, 16, 3}, y.Shape)
	assert.Equal(t, x.Data, y.TransposeNCHW().Data)

	// seeded, so repeatable
	z, err := Synthetic(3, 16, 7, ml.NCHW)
	require.NoError(t, err)
	assert.Equal(t, x.Data, z.Data)

	_, err = Batch(nil, ml.NCHW)
	assert.Error(t, err)
	_, err = Batch([]*Image{Gradient(4, 4, 1), Gradient(5, 4, 1)}, ml.NCHW)
	assert.Error(t, err)

	r, err := Repeat(Gradient(8, 8, 1), 4, ml.NCHW)
	require.NoError(t, err)
	assert.Equal(t, r.Data[:3*64], r.Data[3*3*64:])
}
