// MODUL: input
// ZWECK: Eingabequellen fuer Benchmarks (synthetisch oder Bilddatei)
// INPUT: Batch-Groesse, Bildgroesse, Datenformat
// OUTPUT: ml.Tensor
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei LoadImageInput

package benchmark

import (
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/vision"
)

// Input produces the batch a model is benchmarked on.
type Input interface {
	Batch(n, size int, format ml.DataFormat) (*ml.Tensor, error)
	String() string
}

// SyntheticInput generates seeded gradient images.
type SyntheticInput struct {
	Seed uint64
}

func (s SyntheticInput) Batch(n, size int, format ml.DataFormat) (*ml.Tensor, error) {
	return vision.Synthetic(n, size, s.Seed, format)
}

func (s SyntheticInput) String() string { return "synthetic" }

// ImageInput repeats one preprocessed image across the batch.
type ImageInput struct {
	Path  string
	Image *vision.Image
}

// LoadImageInput decodes the image at path.
func LoadImageInput(path string) (*ImageInput, error) {
	img, err := vision.Load(path)
	if err != nil {
		return nil, err
	}
	return &ImageInput{Path: path, Image: img}, nil
}

func (in *ImageInput) Batch(n, size int, format ml.DataFormat) (*ml.Tensor, error) {
	img, err := vision.Preprocess(in.Image, size)
	if err != nil {
		return nil, err
	}
	return vision.Repeat(img, n, format)
}

func (in *ImageInput) String() string { return in.Path }
