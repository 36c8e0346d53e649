// MODUL: normalize
// ZWECK: Normalisierung und Batch-Erzeugung fuer Netzwerk-Eingaben
// INPUT: Image, Normalisierungs-Parameter (mean, std), Datenformat
// OUTPUT: ml.Tensor im NCHW- oder NHWC-Layout
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml
// HINWEISE: ImageNet-Werte als Default

package vision

import (
	"fmt"

	"github.com/cnnbench/cnnbench/ml"
)

var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Normalize writes the image into dst as (pixel/255 - mean) / std, either
// channel-first (NCHW) or channel-last (NHWC). dst must hold 3·h·w values.
func Normalize(dst []float32, img *Image, mean, std [3]float32, format ml.DataFormat) {
	w, h := img.Width(), img.Height()
	plane := w * h
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			px := row[x*4 : x*4+3]
			i := y*w + x
			for c := range 3 {
				v := (float32(px[c])/255 - mean[c]) / std[c]
				if format == ml.NHWC {
					dst[i*3+c] = v
				} else {
					dst[c*plane+i] = v
				}
			}
		}
	}
}

// Batch stacks same-sized images into a normalised [n, 3, h, w] tensor (or
// [n, h, w, 3] for NHWC).
func Batch(images []*Image, format ml.DataFormat) (*ml.Tensor, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("vision: empty batch")
	}

	w, h := images[0].Width(), images[0].Height()
	out := ml.NewTensor(format.Shape4(len(images), 3, h, w)...)
	for i, img := range images {
		if img.Width() != w || img.Height() != h {
			return nil, fmt.Errorf("vision: image %d is %dx%d, want %dx%d", i, img.Width(), img.Height(), w, h)
		}
		Normalize(out.Data[i*3*w*h:(i+1)*3*w*h], img, ImageNetMean, ImageNetStd, format)
	}
	return out, nil
}

// Repeat builds a batch of n copies of img.
func Repeat(img *Image, n int, format ml.DataFormat) (*ml.Tensor, error) {
	images := make([]*Image, n)
	for i := range images {
		images[i] = img
	}
	return Batch(images, format)
}
