package ml

import (
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape ...int) *Tensor {
	s := Shape(shape).Clone()
	return &Tensor{Shape: s, Data: make([]float32, s.Size())}
}

// FromSlice wraps data without copying. The length must match the shape.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	s := Shape(shape).Clone()
	if s.Size() != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), s)
	}
	return &Tensor{Shape: s, Data: data}, nil
}

// Reshape returns a view with a new shape. One dimension may be -1.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	s, err := Infer(len(t.Data), shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: s, Data: t.Data}, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: t.Shape.Clone(), Data: data}
}

// Bytes returns the storage size of the tensor in the given dtype.
func (t *Tensor) Bytes(dtype DType) int64 {
	return int64(len(t.Data)) * int64(dtype.Size())
}

// Quantize rounds every element through dtype in place, emulating reduced
// precision storage. f32 and unknown types leave the data untouched.
func (t *Tensor) Quantize(dtype DType) {
	switch dtype {
	case DTypeF16:
		for i, v := range t.Data {
			t.Data[i] = float16.Fromfloat32(v).Float32()
		}
	case DTypeBF16:
		copy(t.Data, bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(t.Data)))
	}
}

// TransposeNHWC returns a copy of a 4-D NCHW tensor in NHWC layout.
func (t *Tensor) TransposeNHWC() *Tensor {
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := NewTensor(n, h, w, c)
	for b := range n {
		for ch := range c {
			for y := range h {
				for x := range w {
					out.Data[((b*h+y)*w+x)*c+ch] = t.Data[((b*c+ch)*h+y)*w+x]
				}
			}
		}
	}
	return out
}

// TransposeNCHW returns a copy of a 4-D NHWC tensor in NCHW layout.
func (t *Tensor) TransposeNCHW() *Tensor {
	n, h, w, c := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := NewTensor(n, c, h, w)
	for b := range n {
		for y := range h {
			for x := range w {
				for ch := range c {
					out.Data[((b*c+ch)*h+y)*w+x] = t.Data[((b*h+y)*w+x)*c+ch]
				}
			}
		}
	}
	return out
}
