package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear computes dst = src·Weight + Bias for a batch of rows.
type Linear struct {
	In, Out int

	// Weight is laid out as [In, Out].
	Weight []float32
	Bias   []float32
}

// Forward multiplies src [n, In] into dst [n, Out].
func (l *Linear) Forward(dst, src []float32, n int) {
	out := blas32.General{Rows: n, Cols: l.Out, Stride: l.Out, Data: dst[:n*l.Out]}
	for i := range n {
		copy(out.Data[i*l.Out:(i+1)*l.Out], l.Bias)
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: n, Cols: l.In, Stride: l.In, Data: src[:n*l.In]},
		blas32.General{Rows: l.In, Cols: l.Out, Stride: l.Out, Data: l.Weight},
		1, out)
}
