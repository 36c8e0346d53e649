package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D is a 2-D convolution over a single NCHW sample.
type Conv2D struct {
	InC, OutC        int
	KH, KW           int
	StrideH, StrideW int
	Padding          Padding

	// Weight is laid out as [OutC, InC*KH*KW].
	Weight []float32
	Bias   []float32
}

// OutputSize returns the spatial output size for an h×w input.
func (c *Conv2D) OutputSize(h, w int) (int, int) {
	return OutputSize(h, c.KH, c.StrideH, c.Padding), OutputSize(w, c.KW, c.StrideW, c.Padding)
}

// Forward convolves src [InC, h, w] into dst [OutC, oh, ow].
func (c *Conv2D) Forward(dst, src []float32, h, w int) {
	oh, ow := c.OutputSize(h, w)
	k := c.InC * c.KH * c.KW
	col := make([]float32, k*oh*ow)
	c.im2col(col, src, h, w, oh, ow)

	out := blas32.General{Rows: c.OutC, Cols: oh * ow, Stride: oh * ow, Data: dst[:c.OutC*oh*ow]}
	for o := range c.OutC {
		row := out.Data[o*out.Stride : (o+1)*out.Stride]
		for i := range row {
			row[i] = c.Bias[o]
		}
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: c.OutC, Cols: k, Stride: k, Data: c.Weight},
		blas32.General{Rows: k, Cols: oh * ow, Stride: oh * ow, Data: col},
		1, out)
}

// im2col unrolls every receptive field of src into a column of col, which
// is laid out as [InC*KH*KW, oh*ow]. Padded positions are zero.
func (c *Conv2D) im2col(col, src []float32, h, w, oh, ow int) {
	padT := padBefore(h, c.KH, c.StrideH, c.Padding)
	padL := padBefore(w, c.KW, c.StrideW, c.Padding)

	for ch := range c.InC {
		plane := src[ch*h*w : (ch+1)*h*w]
		for ky := range c.KH {
			for kx := range c.KW {
				row := ((ch*c.KH+ky)*c.KW + kx) * oh * ow
				for y := range oh {
					iy := y*c.StrideH + ky - padT
					for x := range ow {
						ix := x*c.StrideW + kx - padL
						if iy < 0 || iy >= h || ix < 0 || ix >= w {
							col[row+y*ow+x] = 0
							continue
						}
						col[row+y*ow+x] = plane[iy*w+ix]
					}
				}
			}
		}
	}
}
