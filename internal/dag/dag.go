// Package dag provides the cell dependency graph: cycle detection,
// deterministic linearization and upstream/downstream queries.
package dag

import (
	"fmt"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// Graph is a directed graph of cell dependencies. An edge runs from a
// dependency (parent) to the cell that reads it (child).
type Graph struct {
	nodes   map[core.Address]struct{}
	edges   map[core.Address][]core.Address // parent -> children (dependents)
	parents map[core.Address][]core.Address // child -> parents (dependencies)
	linked  map[edge]struct{}
}

type edge struct {
	parent, child core.Address
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[core.Address]struct{}),
		edges:   make(map[core.Address][]core.Address),
		parents: make(map[core.Address][]core.Address),
		linked:  make(map[edge]struct{}),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(addr core.Address) {
	if _, exists := g.nodes[addr]; !exists {
		g.nodes[addr] = struct{}{}
		g.edges[addr] = []core.Address{}
		g.parents[addr] = []core.Address{}
	}
}

// AddEdge adds a directed edge from parent to child (child reads parent).
// Duplicate edges are ignored in constant time. Self-loops are recorded;
// they are cycles and fail Linearize.
func (g *Graph) AddEdge(parent, child core.Address) error {
	if _, exists := g.nodes[parent]; !exists {
		return fmt.Errorf("parent node %s does not exist", parent)
	}
	if _, exists := g.nodes[child]; !exists {
		return fmt.Errorf("child node %s does not exist", child)
	}

	e := edge{parent: parent, child: child}
	if _, dup := g.linked[e]; dup {
		return nil
	}
	g.linked[e] = struct{}{}
	g.edges[parent] = append(g.edges[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	return nil
}

// HasNode reports whether addr is in the graph.
func (g *Graph) HasNode(addr core.Address) bool {
	_, ok := g.nodes[addr]
	return ok
}

// GetParents returns the dependencies of a node in Address order.
func (g *Graph) GetParents(addr core.Address) []core.Address {
	return sorted(g.parents[addr])
}

// GetChildren returns the dependents of a node in Address order.
func (g *Graph) GetChildren(addr core.Address) []core.Address {
	return sorted(g.edges[addr])
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.linked)
}

// color marks DFS progress.
type color uint8

const (
	white color = iota // unvisited
	gray               // in progress
	black              // done
)

// walk runs the three-color depth-first traversal behind Linearize. Roots and dependencies are visited in Address order, so the
// result is a pure function of the graph.
func (g *Graph) walk() (order []core.Address, cycle []core.Address) {
	colors := make(map[core.Address]color, len(g.nodes))
	order = make([]core.Address, 0, len(g.nodes))
	var stack []core.Address

	var visit func(addr core.Address) bool
	visit = func(addr core.Address) bool {
		colors[addr] = gray
		stack = append(stack, addr)

		for _, dep := range sorted(g.parents[addr]) {
			switch colors[dep] {
			case gray:
				// stack holds the read chain dep -> ... -> addr, and addr reads dep
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append([]core.Address(nil), stack[i:]...)
						break
					}
				}
				return false
			case white:
				if !visit(dep) {
					return false
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[addr] = black
		order = append(order, addr)
		return true
	}

	for _, addr := range g.addresses() {
		if colors[addr] == white && !visit(addr) {
			return nil, cycle
		}
	}
	return order, nil
}

// Linearize returns every node with dependencies before dependents. Ties
// between independent cells follow Address order. A cycle fails with
// *core.CircularReferenceError holding the cycle in read order.
func (g *Graph) Linearize() ([]core.Address, error) {
	order, cycle := g.walk()
	if cycle != nil {
		return nil, &core.CircularReferenceError{Cycle: cycle}
	}
	return order, nil
}

// GetExecutionLevels returns nodes grouped by depth.
// Level 0 contains nodes with no dependencies; a node at level N depends
// only on nodes below N.
func (g *Graph) GetExecutionLevels() ([][]core.Address, error) {
	order, err := g.Linearize()
	if err != nil {
		return nil, err
	}

	assigned := make(map[core.Address]int, len(order))
	maxLevel := 0
	for _, addr := range order {
		level := 0
		for _, parent := range g.parents[addr] {
			if l := assigned[parent] + 1; l > level {
				level = l
			}
		}
		assigned[addr] = level
		if level > maxLevel {
			maxLevel = level
		}
	}

	if len(order) == 0 {
		return [][]core.Address{}, nil
	}
	levels := make([][]core.Address, maxLevel+1)
	for _, addr := range order {
		levels[assigned[addr]] = append(levels[assigned[addr]], addr)
	}
	for i := range levels {
		core.SortAddresses(levels[i])
	}
	return levels, nil
}

// GetAffectedNodes returns the changed nodes plus everything downstream of
// them, in Address order. Addresses outside the graph are ignored.
func (g *Graph) GetAffectedNodes(changed []core.Address) []core.Address {
	affected := make(map[core.Address]bool)
	var stack []core.Address
	for _, addr := range changed {
		if _, exists := g.nodes[addr]; exists && !affected[addr] {
			affected[addr] = true
			stack = append(stack, addr)
		}
	}
	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range g.edges[addr] {
			if !affected[child] {
				affected[child] = true
				stack = append(stack, child)
			}
		}
	}
	return keys(affected)
}

// GetUpstreamNodes returns every node addr depends on, transitively, in
// Address order.
func (g *Graph) GetUpstreamNodes(addr core.Address) []core.Address {
	upstream := make(map[core.Address]bool)
	stack := []core.Address{addr}
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, parent := range g.parents[a] {
			if !upstream[parent] {
				upstream[parent] = true
				stack = append(stack, parent)
			}
		}
	}
	return keys(upstream)
}

// GetRoots returns nodes with no dependencies.
func (g *Graph) GetRoots() []core.Address {
	var roots []core.Address
	for _, addr := range g.addresses() {
		if len(g.parents[addr]) == 0 {
			roots = append(roots, addr)
		}
	}
	return roots
}

// GetLeaves returns nodes nothing else reads.
func (g *Graph) GetLeaves() []core.Address {
	var leaves []core.Address
	for _, addr := range g.addresses() {
		if len(g.edges[addr]) == 0 {
			leaves = append(leaves, addr)
		}
	}
	return leaves
}

// Subgraph returns a new graph containing only the given nodes and the edges among them.
func (g *Graph) Subgraph(addrs []core.Address) *Graph {
	subgraph := NewGraph()
	nodeSet := make(map[core.Address]bool)

	for _, addr := range addrs {
		if _, exists := g.nodes[addr]; exists {
			nodeSet[addr] = true
			subgraph.AddNode(addr)
		}
	}

	// Add edges between included nodes
	for _, addr := range addrs {
		for _, child := range g.edges[addr] {
			if nodeSet[child] {
				_ = subgraph.AddEdge(addr, child)
			}
		}
	}

	return subgraph
}

// addresses returns all node addresses in Address order.
func (g *Graph) addresses() []core.Address {
	out := make([]core.Address, 0, len(g.nodes))
	for addr := range g.nodes {
		out = append(out, addr)
	}
	core.SortAddresses(out)
	return out
}

func sorted(in []core.Address) []core.Address {
	out := append([]core.Address(nil), in...)
	core.SortAddresses(out)
	return out
}

func keys(set map[core.Address]bool) []core.Address {
	out := make([]core.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	core.SortAddresses(out)
	return out
}
