package nn

import "math"

// MaxPool2D takes the maximum over each window of a single NCHW sample.
type MaxPool2D struct {
	KH, KW           int
	StrideH, StrideW int
	Padding          Padding
}

func (p *MaxPool2D) OutputSize(h, w int) (int, int) {
	return OutputSize(h, p.KH, p.StrideH, p.Padding), OutputSize(w, p.KW, p.StrideW, p.Padding)
}

// Forward pools src [c, h, w] into dst [c, oh, ow]. Padded positions never
// win.
func (p *MaxPool2D) Forward(dst, src []float32, c, h, w int) {
	oh, ow := p.OutputSize(h, w)
	padT := padBefore(h, p.KH, p.StrideH, p.Padding)
	padL := padBefore(w, p.KW, p.StrideW, p.Padding)

	for ch := range c {
		plane := src[ch*h*w : (ch+1)*h*w]
		out := dst[ch*oh*ow : (ch+1)*oh*ow]
		for y := range oh {
			for x := range ow {
				best := float32(math.Inf(-1))
				for ky := range p.KH {
					iy := y*p.StrideH + ky - padT
					if iy < 0 || iy >= h {
						continue
					}
					for kx := range p.KW {
						ix := x*p.StrideW + kx - padL
						if ix < 0 || ix >= w {
							continue
						}
						best = max(best, plane[iy*w+ix])
					}
				}
				out[y*ow+x] = best
			}
		}
	}
}
