package nn

import (
	"math"
	"math/rand/v2"
)

// GlorotUniform fills w from U(-l, l) with l = sqrt(6/(fanIn+fanOut)).
func GlorotUniform(w []float32, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = float32((rng.Float64()*2 - 1) * limit)
	}
}

// TruncatedNormal fills w from N(0, stddev²), redrawing samples that fall
// more than two standard deviations from the mean.
func TruncatedNormal(w []float32, stddev float64, rng *rand.Rand) {
	for i := range w {
		z := rng.NormFloat64()
		for math.Abs(z) > 2 {
			z = rng.NormFloat64()
		}
		w[i] = float32(z * stddev)
	}
}

func Constant(w []float32, v float32) {
	for i := range w {
		w[i] = v
	}
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
