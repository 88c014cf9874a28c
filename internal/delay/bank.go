package delay

// Bank is an ordered set of independent operators whose levels are laid out
// back to back in one flat slice.
type Bank struct {
	ops     []*Operator
	offsets []int
	size    int
}

func NewBank() *Bank {
	return &Bank{}
}

// Add appends op and returns its index.
func (b *Bank) Add(op *Operator) int {
	b.ops = append(b.ops, op)
	b.offsets = append(b.offsets, b.size)
	b.size += op.StateLen()
	return len(b.ops) - 1
}

func (b *Bank) Len() int { return len(b.ops) }

// StateLen is the total number of sub-stock levels.
func (b *Bank) StateLen() int { return b.size }

func (b *Bank) Operator(i int) *Operator { return b.ops[i] }

// Offset is the position of operator i's first level in the flat layout.
func (b *Bank) Offset(i int) int { return b.offsets[i] }

// Pack copies every operator's levels into dst.
func (b *Bank) Pack(dst []float64) {
	for i, op := range b.ops {
		copy(dst[b.offsets[i]:], op.levels)
	}
}

// Unpack loads every operator's levels from src.
func (b *Bank) Unpack(src []float64) {
	for i, op := range b.ops {
		off := b.offsets[i]
		op.SetLevels(src[off : off+op.StateLen()])
	}
}

// Outputs computes each operator's output from the levels in src.
func (b *Bank) Outputs(src []float64, dst []float64) {
	for i, op := range b.ops {
		off := b.offsets[i]
		dst[i] = OutputAt(op.cfg, src[off:off+op.StateLen()])
	}
}

// Derivatives computes level derivatives for all operators given one input each.
func (b *Bank) Derivatives(src []float64, inputs []float64, dst []float64) {
	for i, op := range b.ops {
		off := b.offsets[i]
		n := op.StateLen()
		Derive(op.cfg, src[off:off+n], inputs[i], dst[off:off+n])
	}
}
