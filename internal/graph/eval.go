package graph

import (
	"fmt"

	"github.com/san-kum/stockflow/internal/delay"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/expr"
	"github.com/san-kum/stockflow/internal/lookup"
	"github.com/sirupsen/logrus"
)

// layerChunk is the smallest slice of a layer handed to one goroutine.
const layerChunk = 4

// Frame holds every variable's value at one instant.
type Frame struct {
	Time   float64
	g      *Graph
	state  dynamo.State
	values []dynamo.Array
}

// Value returns a variable's value, including hidden delay nodes.
func (f *Frame) Value(name string) (dynamo.Array, error) {
	n, err := f.g.lookupNode(name)
	if err != nil {
		return dynamo.Array{}, err
	}
	if n.kind == Lookup {
		return dynamo.Array{}, fmt.Errorf("lookup %s has no value", name)
	}
	v := f.values[n.id]
	if v.Data == nil {
		return dynamo.Array{}, fmt.Errorf("%w: %s", dynamo.ErrUninitializedReference, name)
	}
	return v, nil
}

// State is the state vector the frame was evaluated from.
func (f *Frame) State() dynamo.State { return f.state }

// env adapts a frame to expr.Env.
type env struct {
	f     *Frame
	clock Clock
}

func (e env) Value(name string) (dynamo.Array, error) { return e.f.Value(name) }

func (e env) Table(name string) (*lookup.Table, error) {
	n, err := e.f.g.lookupNode(name)
	if err != nil {
		return nil, err
	}
	if n.table == nil {
		return nil, fmt.Errorf("%s %s is not a lookup", n.kind, name)
	}
	return n.table, nil
}

func (e env) Time() float64        { return e.f.Time }
func (e env) TimeStep() float64    { return e.clock.Dt }
func (e env) InitialTime() float64 { return e.clock.Start }
func (e env) FinalTime() float64   { return e.clock.Stop }

func (g *Graph) newFrame(t float64, x dynamo.State) *Frame {
	return &Frame{Time: t, g: g, state: x, values: make([]dynamo.Array, len(g.nodes))}
}

func (g *Graph) evalExpr(n *node, root expr.Node, e expr.Env) (dynamo.Array, error) {
	v, err := expr.Eval(root, e)
	if err != nil {
		return dynamo.Array{}, fmt.Errorf("%s: %w", n.name, err)
	}
	v, err = dynamo.Broadcast(v, n.shape)
	if err != nil {
		return dynamo.Array{}, fmt.Errorf("%s: %w", n.name, err)
	}
	return v, nil
}

func (g *Graph) evalData(n *node, t float64) dynamo.Array {
	a := dynamo.Zeros(n.shape)
	for i, s := range n.series {
		a.Data[i] = s.Eval(t)
	}
	return a
}

// Initialize evaluates every initial value in dependency order, seeds the
// delay operators and returns the initial state vector.
func (g *Graph) Initialize(c Clock) (dynamo.State, error) {
	x := make(dynamo.State, g.StateDim())
	f := g.newFrame(c.Start, x)
	e := env{f: f, clock: c}
	ops := make([]*delay.Operator, g.opCount)

	for _, id := range g.initOrder {
		n := g.nodes[id]
		var (
			v   dynamo.Array
			err error
		)
		switch {
		case n.delay != nil:
			v, err = g.initDelay(n, e, ops)
		case n.kind == Stock:
			v, err = g.evalExpr(n, n.init, e)
			if err == nil {
				if i := dynamo.State(v.Data).NonFinite(); i >= 0 {
					return nil, &dynamo.DivergenceError{Variable: dynamo.ElementName(n.name, n.shape, i), Value: v.Data[i]}
				}
				copy(x[n.offset:], v.Data)
			}
		case n.kind == Data:
			v = g.evalData(n, c.Start)
		case n.literal != nil:
			v = *n.literal
		default:
			v, err = g.evalExpr(n, n.eq, e)
		}
		if err != nil {
			return nil, err
		}
		f.values[id] = v
	}

	bank := delay.NewBank()
	for _, op := range ops {
		bank.Add(op)
	}
	bank.Pack(x[g.stockLen:])

	g.consts = make([]dynamo.Array, len(g.nodes))
	for _, id := range g.constants {
		g.consts[id] = f.values[id]
	}
	g.bank = bank
	g.clock = c

	g.log.WithFields(logrus.Fields{
		"start":  c.Start,
		"stocks": g.stockLen,
		"delays": bank.Len(),
	}).Debug("model initialized")
	return x, nil
}

func (g *Graph) initDelay(n *node, e env, ops []*delay.Operator) (dynamo.Array, error) {
	d := n.delay
	T, err := g.evalExpr(n, d.time, e)
	if err != nil {
		return dynamo.Array{}, err
	}
	var initial dynamo.Array
	mode := delay.InitThroughput
	if d.init != nil {
		initial, err = g.evalExpr(n, d.init, e)
		mode = g.delayInit
	} else {
		initial, err = dynamo.Broadcast(e.f.values[d.input], n.shape)
	}
	if err != nil {
		return dynamo.Array{}, err
	}

	out := dynamo.Zeros(n.shape)
	for i := range out.Data {
		cfg := delay.Config{Kind: d.spec.Kind, Order: d.spec.Order, Time: T.Data[i], Init: mode}
		op, err := delay.New(cfg, initial.Data[i])
		if err != nil {
			return dynamo.Array{}, fmt.Errorf("%s: %w", dynamo.ElementName(n.name, n.shape, i), err)
		}
		ops[n.offset+i] = op
		out.Data[i] = op.Output()
	}
	return out, nil
}

// Eval computes every variable at time t from state x. Stocks and delay
// outputs come from x; the rest are evaluated layer by layer.
func (g *Graph) Eval(x dynamo.State, t float64) (*Frame, error) {
	if g.bank == nil {
		return nil, ErrNotInitialized
	}
	if len(x) != g.StateDim() {
		return nil, fmt.Errorf("%w: state has %d values, want %d", dynamo.ErrDimensionMismatch, len(x), g.StateDim())
	}
	f := g.newFrame(t, x)
	e := env{f: f, clock: g.clock}

	for _, id := range g.constants {
		f.values[id] = g.consts[id]
	}
	for _, id := range g.stocks {
		n := g.nodes[id]
		a := dynamo.Zeros(n.shape)
		copy(a.Data, x[n.offset:n.offset+len(a.Data)])
		f.values[id] = a
	}
	if len(g.delays) > 0 {
		outs := make([]float64, g.bank.Len())
		g.bank.Outputs(x[g.stockLen:], outs)
		for _, id := range g.delays {
			n := g.nodes[id]
			a := dynamo.Zeros(n.shape)
			copy(a.Data, outs[n.offset:n.offset+len(a.Data)])
			f.values[id] = a
		}
	}
	for _, id := range g.data {
		f.values[id] = g.evalData(g.nodes[id], t)
	}

	for _, layer := range g.layers {
		if err := g.evalLayer(layer, f, e); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (g *Graph) evalLayer(layer []int, f *Frame, e env) error {
	errs := make([]error, len(layer))
	dynamo.ParallelFor(len(layer), layerChunk, g.workers, func(start, end int) {
		for i := start; i < end; i++ {
			n := g.nodes[layer[i]]
			v, err := g.evalExpr(n, n.eq, e)
			if err != nil {
				errs[i] = err
				continue
			}
			f.values[n.id] = v
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Derivatives writes the net flow of every stock and the level derivatives
// of every delay into dst.
func (g *Graph) Derivatives(f *Frame, dst dynamo.State) error {
	if len(dst) != g.StateDim() {
		return fmt.Errorf("%w: derivative buffer has %d values, want %d", dynamo.ErrDimensionMismatch, len(dst), g.StateDim())
	}
	for _, id := range g.stocks {
		n := g.nodes[id]
		d := dst[n.offset : n.offset+n.shape.Size()]
		for i := range d {
			d[i] = 0
		}
		for _, fid := range n.inflows {
			accumulate(d, f.values[fid], 1)
		}
		for _, fid := range n.outflows {
			accumulate(d, f.values[fid], -1)
		}
	}
	if len(g.delays) == 0 {
		return nil
	}
	inputs := make([]float64, g.bank.Len())
	for _, id := range g.delays {
		n := g.nodes[id]
		in, err := dynamo.Broadcast(f.values[n.delay.input], n.shape)
		if err != nil {
			return fmt.Errorf("%s: %w", n.name, err)
		}
		copy(inputs[n.offset:], in.Data)
	}
	g.bank.Derivatives(f.state[g.stockLen:], inputs, dst[g.stockLen:])
	return nil
}

func accumulate(dst []float64, flow dynamo.Array, sign float64) {
	if flow.IsScalar() {
		v := sign * flow.Value()
		for i := range dst {
			dst[i] += v
		}
		return
	}
	for i, v := range flow.Data {
		dst[i] += sign * v
	}
}

// Derive implements dynamo.System.
func (g *Graph) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	f, err := g.Eval(x, t)
	if err != nil {
		return nil, err
	}
	dx := make(dynamo.State, len(x))
	if err := g.Derivatives(f, dx); err != nil {
		return nil, err
	}
	return dx, nil
}

// Operator returns the delay operator behind element i of a hidden delay node.
func (g *Graph) Operator(name string, i int) (*delay.Operator, error) {
	if g.bank == nil {
		return nil, ErrNotInitialized
	}
	n, err := g.lookupNode(name)
	if err != nil {
		return nil, err
	}
	if n.delay == nil || i < 0 || i >= n.shape.Size() {
		return nil, fmt.Errorf("%w: no delay element %s[%d]", dynamo.ErrUnknownVariable, name, i)
	}
	return g.bank.Operator(n.offset + i), nil
}

// Delays names the hidden delay nodes in state order.
func (g *Graph) Delays() []string {
	out := make([]string, len(g.delays))
	for i, id := range g.delays {
		out[i] = g.nodes[id].name
	}
	return out
}
