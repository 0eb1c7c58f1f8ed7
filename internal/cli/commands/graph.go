package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/output"
	"github.com/leapstack-labs/leapcell/internal/dag"
	"github.com/leapstack-labs/leapcell/pkg/compiler"
	"github.com/leapstack-labs/leapcell/pkg/core"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	var (
		bindings bindingFlags
		cell     string
	)

	cmd := &cobra.Command{
		Use:     "graph",
		Aliases: []string{"dag"},
		Short:   "Show the cells the outputs depend on",
		Long: `Display the cells reachable from the declared outputs in evaluation
order, with the cells each one reads and its dependency level.

Cells on one level only read cells of earlier levels. Cells that no
output depends on are not shown.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the dependency graph
  leapcell graph

  # Only the cells Model!B5 reads
  leapcell graph --cell Model!B5

  # Output as JSON
  leapcell graph --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd, &bindings, cell)
		},
	}

	cmd.Flags().StringVar(&cell, "cell", "", "Restrict the graph to the cells Sheet!A1 reads")
	bindings.register(cmd)
	return cmd
}

// graphView is the part of a plan the graph command shows.
type graphView struct {
	plan   *compiler.Plan
	graph  *dag.Graph
	order  []core.Address
	levels [][]core.Address
}

// newGraphView shows the whole plan, or only cell and its upstream cells
// when cell is set.
func newGraphView(plan *compiler.Plan, cell string) (*graphView, error) {
	v := &graphView{plan: plan, graph: plan.Graph, order: plan.Order, levels: plan.Levels}
	if cell == "" {
		return v, nil
	}

	addr, err := core.ParseAddress(cell)
	if err != nil {
		return nil, fmt.Errorf("invalid --cell: %w", err)
	}
	sub, err := plan.Upstream(addr)
	if err != nil {
		return nil, err
	}
	v.graph = sub
	v.order = nil
	for _, a := range plan.Order {
		if sub.HasNode(a) {
			v.order = append(v.order, a)
		}
	}
	v.levels = nil
	for _, level := range plan.Levels {
		var kept []core.Address
		for _, a := range level {
			if sub.HasNode(a) {
				kept = append(kept, a)
			}
		}
		if len(kept) > 0 {
			v.levels = append(v.levels, kept)
		}
	}
	return v, nil
}

func runGraph(cmd *cobra.Command, bindings *bindingFlags, cell string) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)

	inputs, outputs, err := bindings.resolve(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	project, err := cmdCtx.OpenProject(ctx, inputs, outputs)
	if err != nil {
		return err
	}
	plan, err := project.Compiler.Plan(ctx)
	if err != nil {
		return err
	}
	view, err := newGraphView(plan, cell)
	if err != nil {
		return err
	}

	nodes := graphNodes(view)
	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		levels := make([][]string, len(view.levels))
		for i, level := range view.levels {
			levels[i] = addrStrings(level)
		}
		return r.JSON(output.GraphOutput{
			Order:     nodes,
			Levels:    levels,
			Roots:     addrStrings(view.graph.GetRoots()),
			Leaves:    addrStrings(view.graph.GetLeaves()),
			Edges:     view.graph.EdgeCount(),
			Formulas:  plan.Formulas,
			CacheHits: plan.CacheHits,
		})
	case output.ModeMarkdown:
		return graphMarkdown(r, view, nodes)
	default:
		return graphText(r, view, nodes)
	}
}

func graphNodes(view *graphView) []output.GraphNode {
	plan := view.plan
	roles := make(map[core.Address]core.Role)
	for _, in := range plan.Inputs {
		roles[in.Address] |= core.RoleInput
	}
	for _, out := range plan.Outputs {
		roles[out.Address] |= core.RoleOutput
	}

	nodes := make([]output.GraphNode, len(view.order))
	for i, addr := range view.order {
		node := output.GraphNode{
			Cell:      addr.String(),
			DependsOn: addrStrings(plan.Dependencies(addr)),
		}
		if role := roles[addr]; role != core.RolePlain {
			node.Role = role.String()
		}
		if cell, ok := plan.Cells[addr]; ok && cell.Value.IsFormula() && !roles[addr].Has(core.RoleInput) {
			node.Formula = "=" + cell.Value.Raw()
		}
		nodes[i] = node
	}
	return nodes
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, view *graphView, nodes []output.GraphNode) error {
	styles := r.Styles()
	byCell := make(map[string]output.GraphNode, len(nodes))
	for _, n := range nodes {
		byCell[n.Cell] = n
	}

	r.Header(1, "Dependency Graph")
	for i, level := range view.levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, addr := range level {
			n := byCell[addr.String()]
			line := "  " + styles.Cell.Render(n.Cell)
			if n.Role != "" {
				line += " " + styles.Info.Render("["+n.Role+"]")
			}
			if n.Formula != "" {
				line += " " + styles.Code.Render(n.Formula)
			}
			r.Println(line)
			if len(n.DependsOn) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("reads:"), strings.Join(n.DependsOn, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d cells, %d dependencies, %d formulas parsed (%d cached)",
		view.graph.NodeCount(), view.graph.EdgeCount(), view.plan.Formulas, view.plan.CacheHits)))
	r.Println(styles.Muted.Render(fmt.Sprintf("Roots: %d, leaves: %d", len(view.graph.GetRoots()), len(view.graph.GetLeaves()))))
	return nil
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, view *graphView, nodes []output.GraphNode) error {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		rows[i] = []string{fmt.Sprint(i + 1), n.Cell, n.Role, n.Formula, strings.Join(n.DependsOn, ", ")}
	}
	r.Table([]string{"#", "cell", "role", "formula", "reads"}, rows)
	r.Println("")

	r.Println(output.FormatHeader(2, "Levels"))
	r.Println("")
	for i, level := range view.levels {
		r.Println(output.FormatKeyValue(fmt.Sprintf("Level %d", i), strings.Join(addrStrings(level), ", ")))
	}
	r.Println("")
	r.Println(output.FormatKeyValue("Roots", strings.Join(addrStrings(view.graph.GetRoots()), ", ")))
	r.Println(output.FormatKeyValue("Leaves", strings.Join(addrStrings(view.graph.GetLeaves()), ", ")))
	r.Println("")
	r.Printf("**Total:** %d cells, %d dependencies\n", view.graph.NodeCount(), view.graph.EdgeCount())
	return nil
}

func addrStrings(addrs []core.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
