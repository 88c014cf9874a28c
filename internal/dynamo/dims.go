package dynamo

import (
	"fmt"
	"strings"
)

// Dimension is a named subscript axis such as region or gender.
type Dimension struct {
	Name     string
	Elements []string
}

func NewDimension(name string, elements ...string) Dimension {
	return Dimension{Name: name, Elements: elements}
}

// Index returns the position of label on the axis or -1.
func (d Dimension) Index(label string) int {
	for i, e := range d.Elements {
		if e == label {
			return i
		}
	}
	return -1
}

func (d Dimension) Equal(o Dimension) bool {
	if d.Name != o.Name || len(d.Elements) != len(o.Elements) {
		return false
	}
	for i := range d.Elements {
		if d.Elements[i] != o.Elements[i] {
			return false
		}
	}
	return true
}

// Shape is a dimension signature. The zero value is a scalar.
type Shape []Dimension

func (s Shape) IsScalar() bool { return len(s) == 0 }

// Size is the number of elements in an array of this shape.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= len(d.Elements)
	}
	return n
}

// Equal compares axis order and labels.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (s Shape) Names() []string {
	names := make([]string, len(s))
	for i, d := range s {
		names[i] = d.Name
	}
	return names
}

// Axis returns the position of the named dimension or -1.
func (s Shape) Axis(name string) int {
	for i, d := range s {
		if d.Name == name {
			return i
		}
	}
	return -1
}

func (s Shape) String() string {
	if len(s) == 0 {
		return "scalar"
	}
	return "[" + strings.Join(s.Names(), ",") + "]"
}

// Offset maps one label per axis to a row-major flat index.
func (s Shape) Offset(labels ...string) (int, error) {
	if len(labels) != len(s) {
		return 0, fmt.Errorf("%w: %d labels for %d axes of %s", ErrUnknownVariable, len(labels), len(s), s)
	}
	off := 0
	for i, d := range s {
		j := d.Index(labels[i])
		if j < 0 {
			return 0, fmt.Errorf("%w: element %q not in dimension %s", ErrUnknownVariable, labels[i], d.Name)
		}
		off = off*len(d.Elements) + j
	}
	return off, nil
}

// Labels is the inverse of Offset.
func (s Shape) Labels(offset int) []string {
	labels := make([]string, len(s))
	for i := len(s) - 1; i >= 0; i-- {
		n := len(s[i].Elements)
		labels[i] = s[i].Elements[offset%n]
		offset /= n
	}
	return labels
}

// Without drops one axis.
func (s Shape) Without(axis int) Shape {
	out := make(Shape, 0, len(s)-1)
	out = append(out, s[:axis]...)
	return append(out, s[axis+1:]...)
}

// BroadcastShape returns the result signature of an element-wise operation.
func BroadcastShape(a, b Shape) (Shape, error) {
	switch {
	case a.IsScalar():
		return b, nil
	case b.IsScalar():
		return a, nil
	case a.Equal(b):
		return a, nil
	}
	return nil, &DimensionError{Op: "element-wise operation", Left: a, Right: b}
}

// ElementName renders name[a,b] for one flat offset of shape.
func ElementName(name string, s Shape, offset int) string {
	if s.IsScalar() {
		return name
	}
	return name + "[" + strings.Join(s.Labels(offset), ",") + "]"
}
