// MODUL: synthetic
// ZWECK: Reproduzierbare Test-Bilder ohne Dateien
// INPUT: Groesse, Seed, Datenformat
// OUTPUT: Image bzw. normalisierter Batch
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: image/jpeg (nur EncodeJPEG)

package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand/v2"

	"github.com/cnnbench/cnnbench/ml"
)

// Gradient renders a width×height color gradient with seeded noise, which
// compresses and activates roughly like a photograph.
func Gradient(width, height int, seed uint64) *Image {
	rng := rand.New(rand.NewPCG(seed, 0))
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := range height {
		for x := range width {
			nx := float64(x) / float64(width)
			ny := float64(y) / float64(height)
			noise := rng.IntN(21) - 10
			img.SetRGBA(x, y, color.RGBA{
				R: clamp(int(nx*255) + noise),
				G: clamp(int(ny*255) + noise),
				B: clamp(int((nx+ny)/2*255) + noise),
				A: 255,
			})
		}
	}
	return &Image{RGBA: img, Format: FormatUnknown}
}

// Synthetic returns a normalised batch of n gradient images, each with its
// own seed derived from seed.
func Synthetic(n, size int, seed uint64, format ml.DataFormat) (*ml.Tensor, error) {
	images := make([]*Image, n)
	for i := range images {
		images[i] = Gradient(size, size, seed+uint64(i)*1000)
	}
	return Batch(images, format)
}

// EncodeJPEG encodes img at quality 85.
func EncodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	return buf.Bytes()
}

func clamp(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}
