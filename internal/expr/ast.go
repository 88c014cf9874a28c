package expr

import (
	"strconv"
	"strings"
)

type Node interface {
	String() string
	node()
}

type Number struct {
	Value float64
}

// Ref is a variable reference with optional element selectors.
type Ref struct {
	Name string
	Subs []string
	Pos  int
}

type Unary struct {
	Op string
	X  Node
}

type Binary struct {
	Op   string
	L, R Node
}

// Call is a built-in function, a delay operator or a lookup application.
// Built-in names are normalized to upper case.
type Call struct {
	Func string
	Args []Node
	Pos  int
}

func (*Number) node() {}
func (*Ref) node()    {}
func (*Unary) node()  {}
func (*Binary) node() {}
func (*Call) node()   {}

func (n *Number) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }

func (r *Ref) String() string {
	name := r.Name
	if !isPlainIdent(name) {
		name = strconv.Quote(name)
	}
	if len(r.Subs) == 0 {
		return name
	}
	return name + "[" + strings.Join(r.Subs, ",") + "]"
}

func (u *Unary) String() string {
	if u.Op == "not" {
		return "not " + u.X.String()
	}
	return u.Op + u.X.String()
}

func (b *Binary) String() string {
	return "(" + b.L.String() + " " + b.Op + " " + b.R.String() + ")"
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Func + "(" + strings.Join(args, ", ") + ")"
}

func isPlainIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !isIdentRune(r, i == 0) {
			return false
		}
	}
	return true
}

// Expr is a parsed equation.
type Expr struct {
	Source string
	Root   Node
}

func (e *Expr) String() string { return e.Root.String() }

// Refs returns the distinct variables referenced by the equation, in order of
// first appearance, including lookup tables applied as functions.
func (e *Expr) Refs() []string {
	return Refs(e.Root)
}

func Refs(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	Walk(n, func(n Node) {
		switch v := n.(type) {
		case *Ref:
			add(v.Name)
		case *Call:
			if _, ok := builtins[v.Func]; !ok && !IsDelay(v.Func) {
				add(v.Func)
			}
		}
	})
	return out
}

// Walk visits n and its children depth-first, parents first.
func Walk(n Node, fn func(Node)) {
	fn(n)
	switch v := n.(type) {
	case *Unary:
		Walk(v.X, fn)
	case *Binary:
		Walk(v.L, fn)
		Walk(v.R, fn)
	case *Call:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	}
}

// Rewrite rebuilds the tree bottom-up, replacing each node with fn's result.
func Rewrite(n Node, fn func(Node) (Node, error)) (Node, error) {
	switch v := n.(type) {
	case *Unary:
		x, err := Rewrite(v.X, fn)
		if err != nil {
			return nil, err
		}
		n = &Unary{Op: v.Op, X: x}
	case *Binary:
		l, err := Rewrite(v.L, fn)
		if err != nil {
			return nil, err
		}
		r, err := Rewrite(v.R, fn)
		if err != nil {
			return nil, err
		}
		n = &Binary{Op: v.Op, L: l, R: r}
	case *Call:
		args := make([]Node, len(v.Args))
		for i, a := range v.Args {
			x, err := Rewrite(a, fn)
			if err != nil {
				return nil, err
			}
			args[i] = x
		}
		n = &Call{Func: v.Func, Args: args, Pos: v.Pos}
	}
	return fn(n)
}
