package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/stockflow/internal/delay"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/expr"
	"github.com/san-kum/stockflow/internal/lookup"
	"github.com/sirupsen/logrus"
)

// Build validates def and constructs its graph.
func Build(def Definition, opts ...Option) (*Graph, error) {
	g := &Graph{
		def:     def,
		dims:    make(map[string]dynamo.Dimension),
		index:   make(map[string]int),
		workers: 1,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	steps := []func() error{
		g.addDimensions,
		g.declare,
		g.parse,
		g.link,
		g.order,
		g.assignOffsets,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	g.log.WithFields(logrus.Fields{
		"variables": len(def.Variables),
		"nodes":     len(g.nodes),
		"layers":    len(g.layers),
		"state_dim": g.StateDim(),
	}).Debug("model graph built")
	return g, nil
}

func (g *Graph) addDimensions() error {
	for _, d := range g.def.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("%w: dimension without a name", dynamo.ErrDimensionMismatch)
		}
		if _, dup := g.dims[d.Name]; dup {
			return fmt.Errorf("%w: dimension %s declared twice", dynamo.ErrDimensionMismatch, d.Name)
		}
		if len(d.Elements) == 0 {
			return fmt.Errorf("%w: dimension %s has no elements", dynamo.ErrDimensionMismatch, d.Name)
		}
		seen := make(map[string]bool, len(d.Elements))
		for _, e := range d.Elements {
			if seen[e] {
				return fmt.Errorf("%w: dimension %s repeats element %q", dynamo.ErrDimensionMismatch, d.Name, e)
			}
			seen[e] = true
		}
		g.dims[d.Name] = d
	}
	return nil
}

func (g *Graph) addNode(n *node) error {
	if _, dup := g.index[n.name]; dup {
		return fmt.Errorf("variable %s declared twice", n.name)
	}
	n.id = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n.name] = n.id
	return nil
}

func (g *Graph) declare() error {
	for i := range g.def.Variables {
		v := &g.def.Variables[i]
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("variable %d has no name", i)
		}
		if expr.IsReserved(name) {
			return fmt.Errorf("variable name %s is reserved", name)
		}
		n := &node{name: name, kind: v.Kind, nonNeg: v.NonNegative}

		seen := make(map[string]bool)
		for _, dn := range v.Dims {
			d, ok := g.dims[dn]
			if !ok {
				return fmt.Errorf("%w: %s uses undeclared dimension %s", dynamo.ErrDimensionMismatch, name, dn)
			}
			if seen[dn] {
				return fmt.Errorf("%w: %s repeats dimension %s", dynamo.ErrDimensionMismatch, name, dn)
			}
			seen[dn] = true
			n.shape = append(n.shape, d)
		}

		switch v.Kind {
		case Lookup:
			if !n.shape.IsScalar() {
				return fmt.Errorf("lookup %s cannot be subscripted", name)
			}
			t, err := lookup.New(name, v.Points)
			if err != nil {
				return err
			}
			n.table = t
		case Data:
			for off := 0; off < n.shape.Size(); off++ {
				labels := n.shape.Labels(off)
				key := SeriesKey(labels...)
				pts, ok := v.Series[key]
				if !ok {
					return fmt.Errorf("data %s has no series for element %q", name, key)
				}
				// a single observation holds for the whole run
				if len(pts) == 1 {
					pts = []lookup.Point{pts[0], {X: pts[0].X + 1, Y: pts[0].Y}}
				}
				t, err := lookup.New(dynamo.ElementName(name, n.shape, off), pts)
				if err != nil {
					return err
				}
				n.series = append(n.series, t)
			}
		case Stock, Flow, Auxiliary, Constant:
		default:
			return fmt.Errorf("variable %s has unknown kind %v", name, v.Kind)
		}

		if err := g.addNode(n); err != nil {
			return err
		}
	}
	return nil
}

// parse compiles equations, lowering delay calls as it goes.
func (g *Graph) parse() error {
	declared := len(g.nodes)
	for id := 0; id < declared; id++ {
		n := g.nodes[id]
		v := g.def.Variables[id]
		var err error
		switch n.kind {
		case Stock:
			src := v.Initial
			if strings.TrimSpace(src) == "" {
				src = "0"
			}
			n.init, err = g.compile(n, src, "initial value", false)
		case Constant:
			if lit, ok := parseLiteralList(v.Equation, n.shape); ok {
				n.literal = &lit
				continue
			}
			n.eq, err = g.compile(n, v.Equation, "equation", false)
		case Flow, Auxiliary:
			n.eq, err = g.compile(n, v.Equation, "equation", true)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) compile(n *node, src, what string, delays bool) (expr.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%s %s has no %s", n.kind, n.name, what)
	}
	e, err := expr.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.name, err)
	}
	root, err := expr.Rewrite(e.Root, func(x expr.Node) (expr.Node, error) {
		c, ok := x.(*expr.Call)
		if !ok || !expr.IsDelay(c.Func) {
			return x, nil
		}
		if !delays {
			return nil, fmt.Errorf("%s: %s is not allowed in the %s of a %s", n.name, c.Func, what, n.kind)
		}
		return g.lowerDelay(n, c)
	})
	if err != nil {
		return nil, err
	}
	if err := g.checkShape(n, root); err != nil {
		return nil, err
	}
	return root, nil
}

// checkShape verifies that an equation broadcasts to the variable's shape.
func (g *Graph) checkShape(n *node, root expr.Node) error {
	s, err := expr.Infer(root, g)
	if err != nil {
		var de *dynamo.DimensionError
		if errors.As(err, &de) && de.Variable == "" {
			de.Variable = n.name
			return de
		}
		return fmt.Errorf("%s: %w", n.name, err)
	}
	if !s.IsScalar() && !s.Equal(n.shape) {
		return &dynamo.DimensionError{Variable: n.name, Op: "assignment", Left: n.shape, Right: s}
	}
	return nil
}

// lowerDelay replaces a delay call with a reference to a hidden stateful node
// fed by a hidden auxiliary holding the call's input expression.
func (g *Graph) lowerDelay(owner *node, c *expr.Call) (expr.Node, error) {
	spec, _ := expr.LookupDelay(c.Func)
	if len(c.Args) != spec.Args() {
		return nil, fmt.Errorf("%s: %s expects %d arguments, got %d", owner.name, c.Func, spec.Args(), len(c.Args))
	}

	base := fmt.Sprintf("%s#%s", owner.name, strings.ToLower(c.Func))
	name := base
	for k := 1; ; k++ {
		if _, taken := g.index[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s.%d", base, k)
	}

	inShape, err := expr.Infer(c.Args[0], g)
	if err != nil {
		return nil, fmt.Errorf("%s: %s input: %w", owner.name, c.Func, err)
	}
	shape := inShape
	for _, arg := range c.Args[1:] {
		s, err := expr.Infer(arg, g)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", owner.name, c.Func, err)
		}
		if shape, err = dynamo.BroadcastShape(shape, s); err != nil {
			var de *dynamo.DimensionError
			if errors.As(err, &de) {
				de.Variable = owner.name
				de.Op = c.Func
			}
			return nil, err
		}
	}

	if num, ok := c.Args[1].(*expr.Number); ok {
		cfg := delay.Config{Kind: spec.Kind, Order: spec.Order, Time: num.Value}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", owner.name, err)
		}
	}

	in := &node{name: name + ".in", kind: Auxiliary, hidden: true, shape: inShape, eq: c.Args[0]}
	if err := g.addNode(in); err != nil {
		return nil, err
	}
	out := &node{
		name:   name,
		kind:   Auxiliary,
		hidden: true,
		shape:  shape,
		delay:  &delayNode{spec: spec, fn: c.Func, input: in.id, time: c.Args[1]},
	}
	if spec.WithInit {
		out.delay.init = c.Args[2]
	}
	if err := g.addNode(out); err != nil {
		return nil, err
	}
	return &expr.Ref{Name: name, Pos: c.Pos}, nil
}

// parseLiteralList reads "1, 2, 3" as one value per element of shape.
func parseLiteralList(src string, shape dynamo.Shape) (dynamo.Array, bool) {
	if shape.IsScalar() || !strings.Contains(src, ",") {
		return dynamo.Array{}, false
	}
	parts := strings.Split(src, ",")
	if len(parts) != shape.Size() {
		return dynamo.Array{}, false
	}
	a := dynamo.Zeros(shape)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return dynamo.Array{}, false
		}
		a.Data[i] = v
	}
	return a, true
}

// link resolves references into same-step and initialization edges and
// wires stock flows.
func (g *Graph) link() error {
	for _, n := range g.nodes {
		switch {
		case n.delay != nil:
			g.delays = append(g.delays, n.id)
			refs, err := g.resolve(n, n.delay.time)
			if err != nil {
				return err
			}
			n.initDeps = append(n.initDeps, refs...)
			if n.delay.init != nil {
				refs, err := g.resolve(n, n.delay.init)
				if err != nil {
					return err
				}
				n.initDeps = append(n.initDeps, refs...)
			} else {
				n.initDeps = append(n.initDeps, n.delay.input)
			}
		case n.kind == Stock:
			g.stocks = append(g.stocks, n.id)
			refs, err := g.resolve(n, n.init)
			if err != nil {
				return err
			}
			n.initDeps = refs
			v := g.def.Variables[n.id]
			if n.inflows, err = g.flows(n, v.Inflows); err != nil {
				return err
			}
			if n.outflows, err = g.flows(n, v.Outflows); err != nil {
				return err
			}
		case n.kind == Constant:
			g.constants = append(g.constants, n.id)
			if n.literal != nil {
				continue
			}
			refs, err := g.resolve(n, n.eq)
			if err != nil {
				return err
			}
			for _, id := range refs {
				if k := g.nodes[id].kind; k != Constant {
					return fmt.Errorf("constant %s depends on %s %s", n.name, k, g.nodes[id].name)
				}
			}
			n.initDeps = refs
		case n.kind == Data:
			g.data = append(g.data, n.id)
		case n.evaluated():
			refs, err := g.resolve(n, n.eq)
			if err != nil {
				return err
			}
			n.initDeps = refs
			for _, id := range refs {
				if g.nodes[id].evaluated() {
					n.deps = append(n.deps, id)
				}
			}
		}
	}
	return nil
}

// resolve maps the references of root to node ids, omitting lookups.
func (g *Graph) resolve(n *node, root expr.Node) ([]int, error) {
	var ids []int
	for _, name := range expr.Refs(root) {
		id, ok := g.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s referenced by %s", dynamo.ErrUnknownVariable, name, n.name)
		}
		if g.nodes[id].kind == Lookup {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (g *Graph) flows(stock *node, names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		f, err := g.lookupNode(name)
		if err != nil {
			return nil, fmt.Errorf("stock %s: %w", stock.name, err)
		}
		if f.kind == Stock || f.kind == Lookup {
			return nil, fmt.Errorf("stock %s: %s %s cannot be a flow", stock.name, f.kind, name)
		}
		if !f.shape.IsScalar() && !f.shape.Equal(stock.shape) {
			return nil, &dynamo.DimensionError{Variable: stock.name, Op: "flow " + name, Left: stock.shape, Right: f.shape}
		}
		ids = append(ids, f.id)
	}
	return ids, nil
}

func (g *Graph) assignOffsets() error {
	for _, id := range g.stocks {
		n := g.nodes[id]
		n.offset = g.stockLen
		g.stockLen += n.shape.Size()
	}
	for _, id := range g.delays {
		n := g.nodes[id]
		n.offset = g.opCount
		size := n.shape.Size()
		g.opCount += size
		g.delayLen += size * n.delay.spec.Order
	}
	return nil
}
