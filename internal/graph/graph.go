// Package graph turns a declarative model definition into an evaluable
// dependency graph.
//
// Build parses every equation, lowers delay calls into hidden stateful nodes,
// checks dimensions, orders same-step dependencies into layers and derives
// the initialization order. The built Graph implements dynamo.System: stock
// elements followed by delay sub-stock levels form its state vector.
//
// A Graph holds the per-run delay configuration once initialized, so
// concurrent runs each build their own.
package graph

import (
	"errors"
	"fmt"

	"github.com/san-kum/stockflow/internal/delay"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/expr"
	"github.com/san-kum/stockflow/internal/lookup"
	"github.com/sirupsen/logrus"
)

// ErrNotInitialized is returned by Eval and Derive before Initialize.
var ErrNotInitialized = errors.New("graph: not initialized")

// Clock carries the run times visible to TIME_STEP, INITIAL_TIME and FINAL_TIME.
type Clock struct {
	Start float64
	Stop  float64
	Dt    float64
}

type delayNode struct {
	spec  expr.DelaySpec
	fn    string
	input int
	time  expr.Node
	init  expr.Node
}

type node struct {
	id     int
	name   string
	kind   Kind
	hidden bool
	shape  dynamo.Shape

	eq      expr.Node
	literal *dynamo.Array
	init    expr.Node
	delay   *delayNode

	inflows, outflows []int
	nonNeg            bool

	table  *lookup.Table
	series []*lookup.Table

	// offset is the first state index of a stock, or the first bank
	// operator of a delay.
	offset int

	deps     []int
	initDeps []int
}

// stateful reports whether the node's value comes from the state vector.
func (n *node) stateful() bool {
	return n.kind == Stock || n.delay != nil
}

// evaluated reports whether the node is recomputed in a layer each step.
func (n *node) evaluated() bool {
	return n.delay == nil && (n.kind == Auxiliary || n.kind == Flow)
}

type Graph struct {
	def   Definition
	dims  map[string]dynamo.Dimension
	nodes []*node
	index map[string]int

	layers    [][]int
	initOrder []int
	stocks    []int
	delays    []int
	constants []int
	data      []int

	stockLen int
	delayLen int
	opCount  int

	workers   int
	delayInit delay.InitMode
	log       logrus.FieldLogger

	clock  Clock
	bank   *delay.Bank
	consts []dynamo.Array
}

type Option func(*Graph)

// WithWorkers evaluates independent nodes of a layer on up to n goroutines.
func WithWorkers(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.workers = n
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Graph) {
		if l != nil {
			g.log = l
		}
	}
}

// WithDelayInit sets how explicit delay initial values seed the sub-stocks.
func WithDelayInit(m delay.InitMode) Option {
	return func(g *Graph) { g.delayInit = m }
}

func (g *Graph) lookupNode(name string) (*node, error) {
	id, ok := g.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownVariable, name)
	}
	return g.nodes[id], nil
}

// Shape returns the dimension signature of a variable.
func (g *Graph) Shape(name string) (dynamo.Shape, error) {
	n, err := g.lookupNode(name)
	if err != nil {
		return nil, err
	}
	return n.shape, nil
}

// IsTable reports whether name is a lookup.
func (g *Graph) IsTable(name string) bool {
	id, ok := g.index[name]
	return ok && g.nodes[id].kind == Lookup
}

func (g *Graph) Kind(name string) (Kind, bool) {
	id, ok := g.index[name]
	if !ok || g.nodes[id].hidden {
		return 0, false
	}
	return g.nodes[id].kind, true
}

func (g *Graph) Lookup(name string) (*lookup.Table, bool) {
	id, ok := g.index[name]
	if !ok || g.nodes[id].table == nil {
		return nil, false
	}
	return g.nodes[id].table, true
}

// Definition returns the definition the graph was built from.
func (g *Graph) Definition() Definition { return g.def }

// Variables lists the declared variables in declaration order.
func (g *Graph) Variables() []Variable {
	out := make([]Variable, len(g.def.Variables))
	copy(out, g.def.Variables)
	return out
}

// Outputs names every declared variable with a per-step value, excluding
// constants and lookups.
func (g *Graph) Outputs() []string {
	var out []string
	for _, n := range g.nodes {
		if n.hidden {
			continue
		}
		switch n.kind {
		case Stock, Flow, Auxiliary, Data:
			out = append(out, n.name)
		}
	}
	return out
}

// Layers returns node names grouped by evaluation layer. Nodes in one layer
// do not depend on each other.
func (g *Graph) Layers() [][]string {
	out := make([][]string, len(g.layers))
	for i, layer := range g.layers {
		for _, id := range layer {
			out[i] = append(out[i], g.nodes[id].name)
		}
	}
	return out
}

func (g *Graph) InitOrder() []string {
	out := make([]string, len(g.initOrder))
	for i, id := range g.initOrder {
		out[i] = g.nodes[id].name
	}
	return out
}

// Slot locates one stock in the state vector.
type Slot struct {
	Name        string
	Shape       dynamo.Shape
	Offset      int
	NonNegative bool
}

func (g *Graph) Stocks() []Slot {
	out := make([]Slot, len(g.stocks))
	for i, id := range g.stocks {
		n := g.nodes[id]
		out[i] = Slot{Name: n.name, Shape: n.shape, Offset: n.offset, NonNegative: n.nonNeg}
	}
	return out
}

// StockLen is the number of stock elements at the front of the state vector.
func (g *Graph) StockLen() int { return g.stockLen }

// DelayLen is the number of delay sub-stock levels after the stocks.
func (g *Graph) DelayLen() int { return g.delayLen }

func (g *Graph) StateDim() int { return g.stockLen + g.delayLen }

func (g *Graph) Clock() Clock { return g.clock }

// Sync loads delay levels from x into the operators so Operator inspection
// reflects the latest accepted step.
func (g *Graph) Sync(x dynamo.State) {
	if g.bank != nil && len(x) == g.StateDim() {
		g.bank.Unpack(x[g.stockLen:])
	}
}

// StateName names one element of the state vector for diagnostics.
func (g *Graph) StateName(i int) string {
	if i < g.stockLen {
		for _, id := range g.stocks {
			n := g.nodes[id]
			if i < n.offset+n.shape.Size() {
				return dynamo.ElementName(n.name, n.shape, i-n.offset)
			}
		}
	}
	if g.bank != nil {
		j := i - g.stockLen
		for op := g.bank.Len() - 1; op >= 0; op-- {
			if j >= g.bank.Offset(op) {
				return fmt.Sprintf("%s/level%d", g.operatorName(op), j-g.bank.Offset(op)+1)
			}
		}
	}
	return fmt.Sprintf("state[%d]", i)
}

func (g *Graph) operatorName(op int) string {
	for _, id := range g.delays {
		n := g.nodes[id]
		if op < n.offset+n.shape.Size() {
			return dynamo.ElementName(n.name, n.shape, op-n.offset)
		}
	}
	return fmt.Sprintf("delay[%d]", op)
}
