package types

import (
	"github.com/pkg/errors"
	"math"
)

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

func NewTensor(shape []int, values []float64) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Values: append([]float64(nil), values...)}
}

// Scalar is a rank-1 tensor holding a single value.
func Scalar(v float64) Tensor {
	return Tensor{Shape: []int{1}, Values: []float64{v}}
}

// Zeros builds a tensor of the given shape filled with 0.
func Zeros(shape ...int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Values: make([]float64, elementCount(shape))}
}

func (t Tensor) Size() int {
	return elementCount(t.Shape)
}

func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return errors.New("empty shape")
	}

	size := 1
	for _, dim := range t.Shape {
		if dim <= 0 {
			return errors.Errorf("invalid dimension %d in shape %v", dim, t.Shape)
		}
		if size > math.MaxInt/dim {
			return errors.Errorf("shape %v holds more values than addressable", t.Shape)
		}
		size *= dim
	}

	if len(t.Values) != size {
		return errors.Errorf("tensor with shape %v must hold %d values, got %d", t.Shape, size, len(t.Values))
	}

	for i, v := range t.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("non finite value at index %d", i)
		}
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return NewTensor(t.Shape, t.Values)
}

func (t Tensor) sameShape(other Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}

	return true
}

func elementCount(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	n := 1
	for _, dim := range shape {
		n *= dim
	}

	return n
}

// Parameters is the ordered tensor collection that makes up a model.
type Parameters []Tensor

func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}

	cloned := make(Parameters, len(p))
	for i, t := range p {
		cloned[i] = t.Clone()
	}

	return cloned
}

func (p Parameters) Shape() [][]int {
	shape := make([][]int, len(p))
	for i, t := range p {
		shape[i] = append([]int(nil), t.Shape...)
	}

	return shape
}

func (p Parameters) SameShape(other Parameters) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if !p[i].sameShape(other[i]) {
			return false
		}
	}

	return true
}

func (p Parameters) Validate() error {
	if len(p) == 0 {
		return errors.New("empty parameters")
	}

	for i, t := range p {
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "validating tensor %d", i)
		}
	}

	return nil
}

// ZerosLike returns parameters with the same shape as p and every value set to 0.
func ZerosLike(p Parameters) Parameters {
	zeroed := make(Parameters, len(p))
	for i, t := range p {
		zeroed[i] = Zeros(t.Shape...)
	}

	return zeroed
}
