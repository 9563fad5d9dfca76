package domain

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"strata.dev/pkg/strata/internal/adapter"
	m "strata.dev/pkg/strata/internal/model"
)

type pendingParent struct {
	child  int
	parent string
}

type forestLoader struct {
	reader   adapter.DescriptionReader
	nodes    []m.Node
	roots    []int
	byName   map[string]int
	pending  []pendingParent
	loaded   map[m.Path]bool
	visiting map[m.Path]bool
}

// LoadForest reads the description at path and its transitive dependencies
// and links them into a Forest. Every failure is a *StructuralError.
func LoadForest(reader adapter.DescriptionReader, path m.Path) (*Forest, error) {
	abs, err := filepath.Abs(string(path))
	if err != nil {
		return nil, &StructuralError{Source: path, Reason: "resolve path", Err: err}
	}

	l := &forestLoader{
		reader:   reader,
		byName:   make(map[string]int),
		loaded:   make(map[m.Path]bool),
		visiting: make(map[m.Path]bool),
	}

	if err := l.load(m.Path(abs)); err != nil {
		slog.Error("failed to load node graph", "path", path, "error", err)
		return nil, err
	}

	if err := l.resolveParents(); err != nil {
		slog.Error("failed to resolve parents", "path", path, "error", err)
		return nil, err
	}

	if err := l.checkAcyclic(); err != nil {
		slog.Error("node graph has a cycle", "path", path, "error", err)
		return nil, err
	}

	slog.Debug("loaded node graph", "path", abs, "nodes", len(l.nodes), "files", len(l.loaded))

	return &Forest{nodes: l.nodes, roots: l.roots, byName: l.byName}, nil
}

func (l *forestLoader) load(file m.Path) error {
	if l.loaded[file] {
		return nil
	}

	if l.visiting[file] {
		return &StructuralError{Source: file, Reason: "dependency cycle"}
	}

	l.visiting[file] = true
	defer delete(l.visiting, file)

	desc, err := l.reader.Read(file)
	if err != nil {
		return &StructuralError{Source: file, Reason: "malformed description", Err: err}
	}

	dir := file.Dir()

	for _, d := range desc.Nodes {
		index, err := l.addNode(d, dir, m.NoParent, file)
		if err != nil {
			return err
		}

		if d.Parent == "" {
			l.roots = append(l.roots, index)
		} else {
			l.pending = append(l.pending, pendingParent{child: index, parent: d.Parent})
		}
	}

	for _, dep := range desc.Dependencies {
		if err := l.load(m.Path(dep).Resolve(dir)); err != nil {
			return err
		}
	}

	l.loaded[file] = true

	return nil
}

func (l *forestLoader) addNode(d m.NodeDescriptor, dir m.Path, parent int, source m.Path) (int, error) {
	kind, err := m.ParseKind(d.Kind)
	if err != nil {
		return 0, &StructuralError{Source: source, Reason: fmt.Sprintf("node %q", d.Name), Err: err}
	}

	if parent != m.NoParent && d.Parent != "" {
		return 0, &StructuralError{
			Source: source,
			Reason: fmt.Sprintf("node %q is nested and also names parent %q", d.Name, d.Parent),
		}
	}

	if prev, ok := l.byName[d.Name]; ok {
		return 0, &StructuralError{
			Source: source,
			Reason: fmt.Sprintf("duplicate node name %q (first declared in %s)", d.Name, l.nodes[prev].Source),
		}
	}

	node := m.Node{
		Index:    len(l.nodes),
		Kind:     kind,
		Name:     d.Name,
		PatchDir: m.Path(d.PatchDir).Resolve(dir),
		Parent:   parent,
		Source:   source,
	}

	if kind == m.KindDepot {
		if d.Data == nil {
			return 0, &StructuralError{Source: source, Reason: fmt.Sprintf("depot %q has no data", d.Name)}
		}

		data := *d.Data
		node.Depot = &data
	}

	index := node.Index
	l.nodes = append(l.nodes, node)
	l.byName[d.Name] = index

	for _, c := range d.Children {
		child, err := l.addNode(c, dir, index, source)
		if err != nil {
			return 0, err
		}

		l.nodes[index].Children = append(l.nodes[index].Children, child)
	}

	return index, nil
}

func (l *forestLoader) resolveParents() error {
	for _, p := range l.pending {
		parent, ok := l.byName[p.parent]
		if !ok {
			child := l.nodes[p.child]

			return &StructuralError{
				Source: child.Source,
				Reason: fmt.Sprintf("parent %q of node %q not found", p.parent, child.Name),
			}
		}

		l.nodes[p.child].Parent = parent
		l.nodes[parent].Children = append(l.nodes[parent].Children, p.child)
	}

	return nil
}

// checkAcyclic rejects parent chains that loop, which only out-of-line parent
// references can create.
func (l *forestLoader) checkAcyclic() error {
	for _, n := range l.nodes {
		steps := 0

		for p := n.Parent; p != m.NoParent; p = l.nodes[p].Parent {
			steps++
			if steps > len(l.nodes) || p == n.Index {
				return &StructuralError{
					Source: n.Source,
					Reason: fmt.Sprintf("parent chain of node %q is cyclic", n.Name),
				}
			}
		}
	}

	return nil
}
