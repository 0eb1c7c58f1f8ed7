package compiler

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapcell/internal/codegen"
	"github.com/leapstack-labs/leapcell/internal/dag"
	"github.com/leapstack-labs/leapcell/internal/resolver"
	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
)

// Plan is the resolved and ordered part of the workbook a compilation
// reads.
type Plan struct {
	Inputs  []codegen.NamedAddress
	Outputs []codegen.NamedAddress
	// Graph holds the reachable cells; an edge runs from a dependency to
	// its reader.
	Graph *dag.Graph
	// Order lists reachable cells with dependencies first.
	Order []core.Address
	// Levels groups Order by dependency depth.
	Levels [][]core.Address
	Exprs  map[core.Address]formula.Node
	Cells  map[core.Address]core.Cell
	// Blanks lists empty cells read as zero.
	Blanks    []core.Address
	Formulas  int
	CacheHits int
}

// Plan resolves and orders the cells the current outputs depend on. The
// function registry is frozen first, so no registration can change it
// during or after a compilation.
func (c *Compiler) Plan(ctx context.Context) (*Plan, error) {
	if !c.funcs.Frozen() {
		c.funcs.Freeze()
		c.logger.Debug("function registry frozen", "functions", c.funcs.Count())
	}

	inputs, outputs := c.Inputs(), c.Outputs()
	if len(outputs) == 0 {
		return nil, &core.MissingOutputError{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := resolver.Resolve(ctx, resolver.Request{
		Workbook:  c.wb,
		Functions: c.funcs,
		Outputs:   addresses(outputs),
		Inputs:    addresses(inputs),
		Blanks:    c.blanks,
		Cache:     c.parseCache,
		Workers:   c.workers,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, err
	}

	order, err := res.Graph.Linearize()
	if err != nil {
		return nil, err
	}
	levels, err := res.Graph.GetExecutionLevels()
	if err != nil {
		return nil, err
	}

	return &Plan{
		Inputs:    inputs,
		Outputs:   outputs,
		Graph:     res.Graph,
		Order:     order,
		Levels:    levels,
		Exprs:     res.Exprs,
		Cells:     res.Cells,
		Blanks:    res.Blanks,
		Formulas:  res.Formulas,
		CacheHits: res.CacheHits,
	}, nil
}

// Dependencies returns the cells addr reads, in Address order.
func (p *Plan) Dependencies(addr core.Address) []core.Address {
	return p.Graph.GetParents(addr)
}

// Upstream returns addr and every cell it reads, transitively, as a
// graph of their own. It fails when addr is not part of the plan.
func (p *Plan) Upstream(addr core.Address) (*dag.Graph, error) {
	if !p.Graph.HasNode(addr) {
		return nil, fmt.Errorf("cell %s is not read by any output", addr)
	}
	return p.Graph.Subgraph(append(p.Graph.GetUpstreamNodes(addr), addr)), nil
}

// Changed returns the cells of p whose content differs from prev, or that
// prev did not reach, in Address order.
func (p *Plan) Changed(prev *Plan) []core.Address {
	var out []core.Address
	for addr, cell := range p.Cells {
		old, ok := prev.Cells[addr]
		if !ok || old.Value != cell.Value {
			out = append(out, addr)
		}
	}
	core.SortAddresses(out)
	return out
}

// Affected returns the outputs that read any of changed, directly or
// transitively, in declaration order.
func (p *Plan) Affected(changed []core.Address) []codegen.NamedAddress {
	hit := make(map[core.Address]bool)
	for _, addr := range p.Graph.GetAffectedNodes(changed) {
		hit[addr] = true
	}
	var out []codegen.NamedAddress
	for _, o := range p.Outputs {
		if hit[o.Address] {
			out = append(out, o)
		}
	}
	return out
}

func addresses(bindings []codegen.NamedAddress) []core.Address {
	out := make([]core.Address, len(bindings))
	for i, b := range bindings {
		out[i] = b.Address
	}
	return out
}
