// Package tree flattens nested property trees into parent-referencing rows
// and rebuilds them.
//
// Each node is addressed by its name, which must be unique within one tree,
// and points at its parent by name. Roots have an empty parent. Sibling order
// is kept in Position. Both directions are iterative, so tree depth is only
// bounded by memory.
package tree

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateName is returned when two nodes of one tree share a name.
	ErrDuplicateName = errors.New("duplicate property name")

	// ErrEmptyName is returned for a node without a name.
	ErrEmptyName = errors.New("empty property name")

	// ErrOrphan is returned when a stored node references a parent that is
	// not part of the tree, or when nodes form a cycle.
	ErrOrphan = errors.New("orphaned property")
)

// Node is one flattened tree node.
type Node[T any] struct {
	Name     string
	Parent   string
	Position int
	Value    T
}

// Accessors adapts a tree node type.
type Accessors[T any] struct {
	// Name returns the node's unique name.
	Name func(T) string

	// WithName returns a copy of the node carrying name. Build uses it to
	// restore the name kept on Node, which is the only copy stored rows have.
	WithName func(T, string) T

	// Children returns the node's direct children.
	Children func(T) []T

	// WithChildren returns a copy of the node with its children replaced.
	WithChildren func(T, []T) T
}

// Flatten walks roots breadth-first and returns one Node per tree node, with
// each Value stripped of its children.
func Flatten[T any](roots []T, a Accessors[T]) ([]Node[T], error) {
	type pending struct {
		value    T
		parent   string
		position int
	}

	queue := make([]pending, 0, len(roots))
	for i, r := range roots {
		queue = append(queue, pending{value: r, position: i})
	}

	seen := make(map[string]bool)
	nodes := make([]Node[T], 0, len(roots))
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		name := a.Name(p.value)
		if name == "" {
			return nil, fmt.Errorf("%w (parent %q)", ErrEmptyName, p.parent)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		seen[name] = true

		for i, child := range a.Children(p.value) {
			queue = append(queue, pending{value: child, parent: name, position: i})
		}
		nodes = append(nodes, Node[T]{
			Name:     name,
			Parent:   p.parent,
			Position: p.position,
			Value:    a.WithChildren(p.value, nil),
		})
	}
	return nodes, nil
}

// Build reassembles the roots of a tree from its flattened nodes. Siblings
// are ordered by Position, then by Name. Every node must be reachable from a
// root.
func Build[T any](nodes []Node[T], a Accessors[T]) ([]T, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	byParent := make(map[string][]int, len(nodes))
	names := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if n.Name == "" {
			return nil, ErrEmptyName
		}
		if names[n.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, n.Name)
		}
		names[n.Name] = true
		byParent[n.Parent] = append(byParent[n.Parent], i)
	}
	for parent, kids := range byParent {
		sort.SliceStable(kids, func(i, j int) bool {
			x, y := nodes[kids[i]], nodes[kids[j]]
			if x.Position != y.Position {
				return x.Position < y.Position
			}
			return x.Name < y.Name
		})
		if parent != "" && !names[parent] {
			return nil, fmt.Errorf("%w: %q references missing parent %q", ErrOrphan, nodes[kids[0]].Name, parent)
		}
	}

	// Breadth-first order from the roots; children always follow parents.
	order := make([]int, 0, len(nodes))
	order = append(order, byParent[""]...)
	for i := 0; i < len(order); i++ {
		order = append(order, byParent[nodes[order[i]].Name]...)
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("%w: %d nodes unreachable from a root", ErrOrphan, len(nodes)-len(order))
	}

	// Assemble bottom-up so every child is complete before its parent.
	built := make([]T, len(nodes))
	for i := len(order) - 1; i >= 0; i-- {
		idx := order[i]
		v := a.WithName(nodes[idx].Value, nodes[idx].Name)
		if kids := byParent[nodes[idx].Name]; len(kids) > 0 {
			children := make([]T, len(kids))
			for j, k := range kids {
				children[j] = built[k]
			}
			v = a.WithChildren(v, children)
		}
		built[idx] = v
	}

	roots := make([]T, len(byParent[""]))
	for i, idx := range byParent[""] {
		roots[i] = built[idx]
	}
	return roots, nil
}
