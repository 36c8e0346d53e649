package ml

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrShapeMismatch = errors.New("ml: shape mismatch")

// Shape lists tensor dimensions, outermost first.
type Shape []int

// Size returns the number of elements, 1 for a scalar.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	return slices.Equal(s, o)
}

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// Validate reports an error if any dimension is not positive.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	for _, d := range s {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension in %v", ErrShapeMismatch, s)
		}
	}
	return nil
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Infer resolves a requested shape against size elements. At most one
// dimension may be -1; it takes whatever is left over.
func Infer(size int, requested []int) (Shape, error) {
	out := make(Shape, len(requested))
	known, unknown := 1, -1
	for i, d := range requested {
		switch {
		case d == -1 && unknown >= 0:
			return nil, fmt.Errorf("%w: more than one -1 in %v", ErrShapeMismatch, requested)
		case d == -1:
			unknown = i
		case d <= 0:
			return nil, fmt.Errorf("%w: invalid dimension %d in %v", ErrShapeMismatch, d, requested)
		default:
			known *= d
		}
		out[i] = d
	}

	if unknown >= 0 {
		if size%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %d elements into %v", ErrShapeMismatch, size, requested)
		}
		out[unknown] = size / known
	}

	if out.Size() != size {
		return nil, fmt.Errorf("%w: cannot reshape %d elements into %v", ErrShapeMismatch, size, requested)
	}
	return out, nil
}
