// Package vision turns images into normalised input batches for a network.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image is a decoded picture converted to RGBA.
type Image struct {
	*image.RGBA
	Format Format
}

func (img *Image) Width() int { return img.Bounds().Dx() }

func (img *Image) Height() int { return img.Bounds().Dy() }

// Load decodes an image file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes JPEG, PNG or WebP data. Transparent pixels are composited
// onto white.
func Decode(data []byte) (*Image, error) {
	f := DetectFormat(data)
	if f == FormatUnknown {
		return nil, ErrUnknownFormat
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vision: decode %s: %w", f, err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return &Image{RGBA: dst, Format: f}, nil
}

// DecodeReader reads r fully and decodes it.
func DecodeReader(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Resize scales img to exactly width×height with bilinear filtering.
func Resize(img *Image, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("vision: invalid size %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.RGBA, img.Bounds(), draw.Src, nil)
	return &Image{RGBA: dst, Format: img.Format}, nil
}

// ResizeShorter scales img so that its shorter side is size, keeping the
// aspect ratio.
func ResizeShorter(img *Image, size int) (*Image, error) {
	w, h := img.Width(), img.Height()
	if w <= h {
		return Resize(img, size, max(1, h*size/w))
	}
	return Resize(img, max(1, w*size/h), size)
}

// CenterCrop cuts a width×height region out of the middle of img.
func CenterCrop(img *Image, width, height int) (*Image, error) {
	if width > img.Width() || height > img.Height() {
		return nil, fmt.Errorf("vision: crop %dx%d larger than image %dx%d", width, height, img.Width(), img.Height())
	}

	offset := image.Pt(img.Bounds().Min.X+(img.Width()-width)/2, img.Bounds().Min.Y+(img.Height()-height)/2)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img.RGBA, offset, draw.Src)
	return &Image{RGBA: dst, Format: img.Format}, nil
}

// Preprocess applies the usual ImageNet evaluation transform: resize the
// shorter side to size*8/7 and center crop size×size.
func Preprocess(img *Image, size int) (*Image, error) {
	resized, err := ResizeShorter(img, size*8/7)
	if err != nil {
		return nil, err
	}
	return CenterCrop(resized, size, size)
}
