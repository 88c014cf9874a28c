package dynamo

import "fmt"

// Array holds the values of one variable, row-major over its Shape.
type Array struct {
	Shape Shape
	Data  []float64
}

func Scalar(v float64) Array {
	return Array{Data: []float64{v}}
}

func Zeros(s Shape) Array {
	return Array{Shape: s, Data: make([]float64, s.Size())}
}

func Fill(s Shape, v float64) Array {
	a := Zeros(s)
	for i := range a.Data {
		a.Data[i] = v
	}
	return a
}

// NewArray wraps data; its length must match the shape.
func NewArray(s Shape, data []float64) (Array, error) {
	if len(data) != s.Size() {
		return Array{}, fmt.Errorf("%w: %d values for shape %s of size %d", ErrDimensionMismatch, len(data), s, s.Size())
	}
	return Array{Shape: s, Data: data}, nil
}

func (a Array) IsScalar() bool { return a.Shape.IsScalar() }

func (a Array) Len() int { return len(a.Data) }

// Value returns the single element of a scalar array.
func (a Array) Value() float64 {
	if len(a.Data) == 0 {
		return 0
	}
	return a.Data[0]
}

// At looks up one element by its labels.
func (a Array) At(labels ...string) (float64, error) {
	off, err := a.Shape.Offset(labels...)
	if err != nil {
		return 0, err
	}
	return a.Data[off], nil
}

func (a Array) Sum() float64 {
	sum := 0.0
	for _, v := range a.Data {
		sum += v
	}
	return sum
}

// Map applies fn element-wise and returns a new array of the same shape.
func (a Array) Map(fn func(float64) float64) Array {
	out := Array{Shape: a.Shape, Data: make([]float64, len(a.Data))}
	for i, v := range a.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Select fixes one axis to a single element and drops it.
func (a Array) Select(axis, index int) Array {
	outShape := a.Shape.Without(axis)
	out := Zeros(outShape)

	inner := 1
	for _, d := range a.Shape[axis+1:] {
		inner *= len(d.Elements)
	}
	n := len(a.Shape[axis].Elements)
	outer := len(a.Data) / (n * inner)

	k := 0
	for o := 0; o < outer; o++ {
		base := o*n*inner + index*inner
		copy(out.Data[k:k+inner], a.Data[base:base+inner])
		k += inner
	}
	return out
}

// Binary combines two arrays element-wise, broadcasting scalars.
func Binary(a, b Array, fn func(x, y float64) float64) (Array, error) {
	shape, err := BroadcastShape(a.Shape, b.Shape)
	if err != nil {
		return Array{}, err
	}
	out := Zeros(shape)
	switch {
	case a.IsScalar() && b.IsScalar():
		out.Data[0] = fn(a.Data[0], b.Data[0])
	case a.IsScalar():
		x := a.Data[0]
		for i, y := range b.Data {
			out.Data[i] = fn(x, y)
		}
	case b.IsScalar():
		y := b.Data[0]
		for i, x := range a.Data {
			out.Data[i] = fn(x, y)
		}
	default:
		for i := range a.Data {
			out.Data[i] = fn(a.Data[i], b.Data[i])
		}
	}
	return out, nil
}

// Broadcast expands a scalar to shape s, or checks that a already has it.
func Broadcast(a Array, s Shape) (Array, error) {
	if a.Shape.Equal(s) {
		return a, nil
	}
	if a.IsScalar() {
		return Fill(s, a.Value()), nil
	}
	return Array{}, &DimensionError{Op: "broadcast", Left: a.Shape, Right: s}
}
