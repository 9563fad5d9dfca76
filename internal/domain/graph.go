package domain

import (
	"fmt"

	m "strata.dev/pkg/strata/internal/model"
)

// Forest is the immutable workspace graph. Nodes live in a flat arena and
// refer to each other by index.
type Forest struct {
	nodes  []m.Node
	roots  []int
	byName map[string]int
}

// Len returns the number of nodes.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Node returns the node stored at index.
func (f *Forest) Node(index int) m.Node {
	return f.nodes[index]
}

// Roots returns the root nodes in effective order.
func (f *Forest) Roots() []m.Node {
	return f.collect(f.roots)
}

// All enumerates every node in pre-order, parents before children.
func (f *Forest) All() []m.Node {
	out := make([]m.Node, 0, len(f.nodes))

	var visit func(i int)
	visit = func(i int) {
		out = append(out, f.nodes[i])
		for _, c := range f.nodes[i].Children {
			visit(c)
		}
	}

	for _, r := range f.roots {
		visit(r)
	}

	return out
}

// OfKind returns the nodes of kind in pre-order.
func (f *Forest) OfKind(kind m.Kind) []m.Node {
	var out []m.Node

	for _, n := range f.All() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}

	return out
}

// Named returns every node called name. Names are unique once loaded, so
// the result has at most one element.
func (f *Forest) Named(name string) []m.Node {
	if i, ok := f.byName[name]; ok {
		return []m.Node{f.nodes[i]}
	}

	return nil
}

// Lookup returns the node called name.
func (f *Forest) Lookup(name string) (m.Node, error) {
	i, ok := f.byName[name]
	if !ok {
		return m.Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	return f.nodes[i], nil
}

// Parent returns the parent of n, if any.
func (f *Forest) Parent(n m.Node) (m.Node, bool) {
	if n.IsRoot() {
		return m.Node{}, false
	}

	return f.nodes[n.Parent], true
}

// Children returns the direct children of n.
func (f *Forest) Children(n m.Node) []m.Node {
	return f.collect(n.Children)
}

// Ancestors returns the parent chain of n, nearest first.
func (f *Forest) Ancestors(n m.Node) []m.Node {
	var out []m.Node

	for p, ok := f.Parent(n); ok; p, ok = f.Parent(p) {
		out = append(out, p)
	}

	return out
}

// Subtree returns n and its descendants in pre-order.
func (f *Forest) Subtree(n m.Node) []m.Node {
	out := []m.Node{n}
	for _, c := range f.Children(n) {
		out = append(out, f.Subtree(c)...)
	}

	return out
}

func (f *Forest) collect(indices []int) []m.Node {
	out := make([]m.Node, 0, len(indices))
	for _, i := range indices {
		out = append(out, f.nodes[i])
	}

	return out
}

// Select resolves sel against the forest in processing order.
func (f *Forest) Select(sel Selection) ([]m.Node, error) {
	if sel.Name == "" {
		if sel.Kind == "" {
			return f.All(), nil
		}

		return f.OfKind(sel.Kind), nil
	}

	node, err := f.Lookup(sel.Name)
	if err != nil {
		return nil, err
	}

	if !sel.WithAncestors {
		return []m.Node{node}, nil
	}

	ancestors := f.Ancestors(node)
	out := make([]m.Node, 0, len(ancestors)+1)

	for i := len(ancestors) - 1; i >= 0; i-- {
		out = append(out, ancestors[i])
	}

	return append(out, node), nil
}
