package nn

import (
	"math"
	"math/rand/v2"
)

func ReLU(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// Dropout zeroes each element with probability 1-keep and scales the
// survivors by 1/keep. keep >= 1 is the identity.
func Dropout(x []float32, keep float32, rng *rand.Rand) {
	if keep >= 1 {
		return
	}
	scale := 1 / keep
	for i := range x {
		if rng.Float32() < keep {
			x[i] *= scale
		} else {
			x[i] = 0
		}
	}
}

// Softmax normalises each of the n rows of x in place.
func Softmax(x []float32, n, classes int) {
	for i := range n {
		row := x[i*classes : (i+1)*classes]
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}

		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - m))
			row[j] = float32(e)
			sum += e
		}
		for j := range row {
			row[j] = float32(float64(row[j]) / sum)
		}
	}
}

// CrossEntropy returns the mean sparse softmax cross entropy of logits
// [n, classes] against integer labels.
func CrossEntropy(logits []float32, labels []int, classes int) float64 {
	n := len(labels)
	if n == 0 {
		return 0
	}

	var total float64
	for i, label := range labels {
		row := logits[i*classes : (i+1)*classes]
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}

		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - m))
		}
		total += math.Log(sum) - float64(row[label]-m)
	}
	return total / float64(n)
}

// Argmax returns the index of the largest value in each of the n rows.
func Argmax(x []float32, n, classes int) []int {
	out := make([]int, n)
	for i := range n {
		row := x[i*classes : (i+1)*classes]
		for j, v := range row {
			if v > row[out[i]] {
				out[i] = j
			}
		}
	}
	return out
}
