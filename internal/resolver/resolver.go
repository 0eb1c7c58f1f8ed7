// Package resolver walks backward from the declared outputs, parses every
// reachable formula and builds the cell dependency graph.
//
// Traversal is level-synchronous: all cells of one BFS level are parsed
// concurrently, then their references form the next level. Cells that no
// output depends on are never read, so work is bounded by the reachable set
// rather than by workbook size.
package resolver

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapcell/internal/dag"
	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
)

// BlankPolicy decides what a reference to an empty cell means.
type BlankPolicy int

// Blank policies.
const (
	// BlankError rejects references to empty cells.
	BlankError BlankPolicy = iota
	// BlankZero treats empty cells as the number 0.
	BlankZero
)

func (p BlankPolicy) String() string {
	if p == BlankZero {
		return "zero"
	}
	return "error"
}

// Request describes one resolution.
type Request struct {
	Workbook  core.Workbook
	Functions formula.Catalog
	Outputs   []core.Address
	Inputs    []core.Address
	Blanks    BlankPolicy
	// Cache holds parsed formulas across resolutions; nil disables caching.
	Cache *ParseCache
	// Workers bounds concurrent parsing; zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Result is the reachable part of the workbook.
type Result struct {
	// Graph holds one node per reachable address; an edge runs from a
	// dependency to the cell that reads it.
	Graph *dag.Graph
	// Exprs holds the parsed tree of every reachable non-input formula cell.
	Exprs map[core.Address]formula.Node
	// Cells snapshots every reachable cell with its role attached.
	Cells map[core.Address]core.Cell
	// Blanks lists empty cells read as zero, in Address order.
	Blanks []core.Address
	// Formulas counts reachable formula cells; CacheHits counts how many of
	// them came from the cache.
	Formulas  int
	CacheHits int
	// Levels is the number of BFS levels visited.
	Levels int
}

type resolution struct {
	req    Request
	inputs map[core.Address]bool
	result *Result
}

// Resolve computes the cells reachable backward from req.Outputs.
// The first error in Address order wins when several cells of one level fail.
func Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.Logger == nil {
		req.Logger = slog.New(slog.DiscardHandler)
	}
	if req.Workers <= 0 {
		req.Workers = runtime.GOMAXPROCS(0)
	}

	r := &resolution{
		req:    req,
		inputs: make(map[core.Address]bool, len(req.Inputs)),
		result: &Result{
			Graph: dag.NewGraph(),
			Exprs: make(map[core.Address]formula.Node),
			Cells: make(map[core.Address]core.Cell),
		},
	}
	for _, in := range req.Inputs {
		r.inputs[in] = true
	}

	outputs := make(map[core.Address]bool, len(req.Outputs))
	for _, out := range req.Outputs {
		outputs[out] = true
	}

	var frontier []core.Address
	for _, out := range dedupe(req.Outputs) {
		cell, err := r.lookup(out, core.Address{})
		if err != nil {
			return nil, err
		}
		r.visit(cell)
		frontier = append(frontier, out)
	}
	for addr := range outputs {
		cell := r.result.Cells[addr]
		cell.Role |= core.RoleOutput
		r.result.Cells[addr] = cell
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.result.Levels++

		parsed, err := r.parseLevel(ctx, frontier)
		if err != nil {
			return nil, err
		}

		next, err := r.expand(frontier, parsed)
		if err != nil {
			return nil, err
		}

		req.Logger.Debug("resolved level",
			"level", r.result.Levels,
			"cells", len(frontier),
			"formulas", len(parsed),
			"next", len(next))
		frontier = next
	}

	core.SortAddresses(r.result.Blanks)
	req.Logger.Debug("resolution complete",
		"cells", r.result.Graph.NodeCount(),
		"edges", r.result.Graph.EdgeCount(),
		"formulas", r.result.Formulas,
		"cache_hits", r.result.CacheHits)
	return r.result, nil
}

// lookup returns the cell at addr. from is the referencing cell, zero for a
// declared output.
func (r *resolution) lookup(addr, from core.Address) (core.Cell, error) {
	if r.inputs[addr] {
		cell, _ := r.req.Workbook.Cell(addr)
		cell.Address = addr
		cell.Role = core.RoleInput
		return cell, nil
	}
	if !r.req.Workbook.HasSheet(addr.Sheet) {
		return core.Cell{}, &core.UnresolvedReferenceError{Ref: addr, From: from, Reason: "sheet does not exist"}
	}
	cell, ok := r.req.Workbook.Cell(addr)
	if ok && !cell.Value.IsEmpty() {
		cell.Address = addr
		cell.Role = core.RolePlain
		return cell, nil
	}
	if r.req.Blanks == BlankZero && !from.IsZero() {
		r.result.Blanks = append(r.result.Blanks, addr)
		return core.Cell{Address: addr, Value: core.Number(0)}, nil
	}
	return core.Cell{}, &core.UnresolvedReferenceError{Ref: addr, From: from, Reason: "cell is empty"}
}

func (r *resolution) visit(cell core.Cell) {
	r.result.Cells[cell.Address] = cell
	r.result.Graph.AddNode(cell.Address)
}

// parseLevel parses the formula cells of one level concurrently.
func (r *resolution) parseLevel(ctx context.Context, level []core.Address) (map[core.Address]formula.Node, error) {
	var todo []core.Cell
	for _, addr := range level {
		cell := r.result.Cells[addr]
		if cell.Role.Has(core.RoleInput) || !cell.Value.IsFormula() {
			continue
		}
		todo = append(todo, cell)
	}
	r.result.Formulas += len(todo)

	nodes := make([]formula.Node, len(todo))
	errs := make([]error, len(todo))
	hits := make([]bool, len(todo))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.req.Workers)
	for i, cell := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text := cell.Value.Text
			if node, ok := r.req.Cache.Get(cell.Address, text); ok {
				nodes[i], hits[i] = node, true
				return nil
			}
			node, err := formula.ParseCell(cell.Address, "="+text, r.req.Functions)
			if err != nil {
				errs[i] = err
				return nil
			}
			r.req.Cache.Put(cell.Address, text, node)
			nodes[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// level is in Address order, so the first failure is the lowest address
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	parsed := make(map[core.Address]formula.Node, len(todo))
	for i, cell := range todo {
		parsed[cell.Address] = nodes[i]
		r.result.Exprs[cell.Address] = nodes[i]
		if hits[i] {
			r.result.CacheHits++
		}
	}
	return parsed, nil
}

// expand records the edges of a parsed level and returns the addresses
// first seen in it, in Address order.
func (r *resolution) expand(level []core.Address, parsed map[core.Address]formula.Node) ([]core.Address, error) {
	var next []core.Address
	for _, addr := range level {
		node, ok := parsed[addr]
		if !ok {
			continue
		}
		for _, dep := range formula.Dependencies(node) {
			if !r.result.Graph.HasNode(dep) {
				cell, err := r.lookup(dep, addr)
				if err != nil {
					return nil, err
				}
				r.visit(cell)
				next = append(next, dep)
			}
			if err := r.result.Graph.AddEdge(dep, addr); err != nil {
				return nil, err
			}
		}
	}
	core.SortAddresses(next)
	return next, nil
}

// dedupe returns the distinct addresses of in, in Address order.
func dedupe(in []core.Address) []core.Address {
	seen := make(map[core.Address]bool, len(in))
	out := make([]core.Address, 0, len(in))
	for _, a := range in {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	core.SortAddresses(out)
	return out
}
