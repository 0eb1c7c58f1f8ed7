package dag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// cell builds an address on Sheet1 from A1 notation.
func cell(ref string) core.Address {
	a, err := core.ParseLocal("Sheet1", ref)
	if err != nil {
		panic(err)
	}
	return a
}

func names(addrs []core.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Local()
	}
	return out
}

func newGraph(nodes ...string) *Graph {
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(cell(n))
	}
	return g
}

// reads records that reader's formula references dep.
func reads(t *testing.T, g *Graph, reader, dep string) {
	t.Helper()
	if err := g.AddEdge(cell(dep), cell(reader)); err != nil {
		t.Fatalf("failed to add edge: %v", err)
	}
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := newGraph("A1", "B1", "C1")

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "B1")

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
	if !g.HasNode(cell("A1")) || g.HasNode(cell("D1")) {
		t.Error("HasNode reports wrong membership")
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := newGraph("A1")

	if err := g.AddEdge(cell("A1"), cell("Z9")); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge(cell("Z9"), cell("A1")); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_SelfLoopIsCycle(t *testing.T) {
	g := newGraph("A1")
	reads(t, g, "A1", "A1")

	_, err := g.Linearize()
	var cre *core.CircularReferenceError
	if !errors.As(err, &cre) {
		t.Fatalf("expected CircularReferenceError, got %v", err)
	}
	if got := names(cre.Cycle); len(got) != 1 || got[0] != "A1" {
		t.Errorf("expected cycle [A1], got %v", got)
	}
}

func TestGraph_GetParentsAndChildren(t *testing.T) {
	g := newGraph("A1", "B1", "C1")

	// B1 reads A1, C1 reads both A1 and B1
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "B1")
	reads(t, g, "C1", "A1")

	parents := g.GetParents(cell("C1"))
	if fmt.Sprint(names(parents)) != "[A1 B1]" {
		t.Errorf("expected C1 parents [A1 B1], got %v", names(parents))
	}

	children := g.GetChildren(cell("A1"))
	if len(children) != 2 {
		t.Errorf("expected A1 to have 2 children, got %d", len(children))
	}
}

func TestGraph_Linearize_ThreeCellCycle(t *testing.T) {
	g := newGraph("A1", "B1", "C1")
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "B1")
	reads(t, g, "A1", "C1") // Creates cycle

	_, err := g.Linearize()
	var cre *core.CircularReferenceError
	if !errors.As(err, &cre) {
		t.Fatalf("expected CircularReferenceError, got %v", err)
	}
	if len(cre.Cycle) != 3 {
		t.Errorf("expected full 3-cell cycle, got %v", names(cre.Cycle))
	}
}

func TestGraph_Linearize_TwoCellCycle(t *testing.T) {
	g := newGraph("A1", "B1", "C1")
	reads(t, g, "A1", "B1")
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "A1")

	_, err := g.Linearize()
	var cre *core.CircularReferenceError
	if !errors.As(err, &cre) {
		t.Fatalf("expected CircularReferenceError, got %v", err)
	}
	if got := fmt.Sprint(names(cre.Cycle)); got != "[A1 B1]" {
		t.Errorf("expected cycle [A1 B1], got %s", got)
	}
	if !errors.Is(err, core.ErrCircularReference) {
		t.Error("expected error to match ErrCircularReference")
	}
}

func TestGraph_Linearize_CycleOrderFollowsReads(t *testing.T) {
	// A1 reads C1, C1 reads B1, B1 reads A1
	g := newGraph("A1", "B1", "C1")
	reads(t, g, "A1", "C1")
	reads(t, g, "C1", "B1")
	reads(t, g, "B1", "A1")

	_, err := g.Linearize()
	var cre *core.CircularReferenceError
	if !errors.As(err, &cre) {
		t.Fatalf("expected CircularReferenceError, got %v", err)
	}
	if got := fmt.Sprint(names(cre.Cycle)); got != "[A1 C1 B1]" {
		t.Errorf("expected cycle [A1 C1 B1], got %s", got)
	}
}

func TestGraph_Linearize_Simple(t *testing.T) {
	g := newGraph("C1", "B1", "A1")
	// B1 reads A1, C1 reads B1
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "B1")

	order, err := g.Linearize()
	if err != nil {
		t.Fatalf("failed to linearize: %v", err)
	}
	if got := fmt.Sprint(names(order)); got != "[A1 B1 C1]" {
		t.Errorf("expected [A1 B1 C1], got %s", got)
	}
}

func TestGraph_Linearize_TieBreakByAddress(t *testing.T) {
	// A2 reads B1 and A1; independent cells follow (sheet, row, column)
	g := newGraph("A2", "B1", "A1", "C3", "B2")
	reads(t, g, "A2", "B1")
	reads(t, g, "A2", "A1")

	first, err := g.Linearize()
	if err != nil {
		t.Fatalf("failed to linearize: %v", err)
	}
	if got := fmt.Sprint(names(first)); got != "[A1 B1 A2 B2 C3]" {
		t.Errorf("expected [A1 B1 A2 B2 C3], got %s", got)
	}

	for i := 0; i < 10; i++ {
		again, _ := g.Linearize()
		if fmt.Sprint(again) != fmt.Sprint(first) {
			t.Fatalf("linearization is not deterministic: %v vs %v", again, first)
		}
	}
}

func TestGraph_Linearize_DependencyAfterDependent(t *testing.T) {
	// A1 reads Z9: dependencies come first even when they sort later
	g := newGraph("A1", "Z9")
	reads(t, g, "A1", "Z9")

	order, err := g.Linearize()
	if err != nil {
		t.Fatalf("failed to linearize: %v", err)
	}
	if got := fmt.Sprint(names(order)); got != "[Z9 A1]" {
		t.Errorf("expected [Z9 A1], got %s", got)
	}
}

func TestGraph_Linearize_Diamond(t *testing.T) {
	// Diamond: B1 and C1 read A1, D1 reads B1 and C1
	g := newGraph("D1", "C1", "B1", "A1")
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "A1")
	reads(t, g, "D1", "B1")
	reads(t, g, "D1", "C1")

	order, err := g.Linearize()
	if err != nil {
		t.Fatalf("failed to linearize: %v", err)
	}
	if got := fmt.Sprint(names(order)); got != "[A1 B1 C1 D1]" {
		t.Errorf("expected [A1 B1 C1 D1], got %s", got)
	}
}

func TestGraph_CycleFailsLevels(t *testing.T) {
	g := newGraph("A1", "B1")
	reads(t, g, "B1", "A1")
	reads(t, g, "A1", "B1")

	if _, err := g.GetExecutionLevels(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestGraph_GetExecutionLevels(t *testing.T) {
	g := newGraph("A1", "A2", "B1", "B2", "C1")

	// B1 reads A1, B2 reads A2, C1 reads B1 and B2
	reads(t, g, "B1", "A1")
	reads(t, g, "B2", "A2")
	reads(t, g, "C1", "B1")
	reads(t, g, "C1", "B2")

	levels, err := g.GetExecutionLevels()
	if err != nil {
		t.Fatalf("failed to get levels: %v", err)
	}

	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if got := fmt.Sprint(names(levels[0])); got != "[A1 A2]" {
		t.Errorf("expected [A1 A2] at level 0, got %s", got)
	}
	if got := fmt.Sprint(names(levels[1])); got != "[B1 B2]" {
		t.Errorf("expected [B1 B2] at level 1, got %s", got)
	}
	if len(levels[2]) != 1 || levels[2][0] != cell("C1") {
		t.Errorf("expected [C1] at level 2, got %v", levels[2])
	}

	empty, err := NewGraph().GetExecutionLevels()
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no levels for empty graph, got %v, %v", empty, err)
	}
}

func TestGraph_GetAffectedNodes(t *testing.T) {
	g := newGraph("A1", "B1", "C1", "D1")

	// B1 reads A1, C1 reads B1, D1 is independent
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "B1")

	affected := g.GetAffectedNodes([]core.Address{cell("A1"), cell("Z1")})
	if got := fmt.Sprint(names(affected)); got != "[A1 B1 C1]" {
		t.Errorf("expected [A1 B1 C1], got %s", got)
	}
}

func TestGraph_GetUpstreamNodes(t *testing.T) {
	g := newGraph("A1", "B1", "C1", "D1")

	// C1 reads A1 and B1, D1 reads C1
	reads(t, g, "C1", "A1")
	reads(t, g, "C1", "B1")
	reads(t, g, "D1", "C1")

	upstream := g.GetUpstreamNodes(cell("D1"))
	if got := fmt.Sprint(names(upstream)); got != "[A1 B1 C1]" {
		t.Errorf("expected [A1 B1 C1], got %s", got)
	}
}

func TestGraph_RootsAndLeaves(t *testing.T) {
	g := newGraph("A1", "B1", "C1")
	reads(t, g, "C1", "A1")
	reads(t, g, "C1", "B1")

	if got := fmt.Sprint(names(g.GetRoots())); got != "[A1 B1]" {
		t.Errorf("expected roots [A1 B1], got %s", got)
	}
	if got := fmt.Sprint(names(g.GetLeaves())); got != "[C1]" {
		t.Errorf("expected leaves [C1], got %s", got)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	g := newGraph("A1", "B1", "C1", "D1")
	reads(t, g, "B1", "A1")
	reads(t, g, "C1", "B1")
	reads(t, g, "D1", "C1")

	sub := g.Subgraph([]core.Address{cell("B1"), cell("C1"), cell("Z9")})

	if sub.NodeCount() != 2 {
		t.Errorf("expected 2 nodes, got %d", sub.NodeCount())
	}
	if sub.EdgeCount() != 1 {
		t.Errorf("expected 1 edge, got %d", sub.EdgeCount())
	}
	if sub.HasNode(cell("Z9")) {
		t.Error("addresses outside the graph must not be added")
	}
	if got := fmt.Sprint(names(sub.GetParents(cell("C1")))); got != "[B1]" {
		t.Errorf("expected C1 to read [B1], got %s", got)
	}
}

func TestGraph_DuplicateEdges(t *testing.T) {
	g := newGraph("A1", "B1")

	// Add same edge twice
	reads(t, g, "B1", "A1")
	reads(t, g, "B1", "A1")

	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 edge (no duplicates), got %d", g.EdgeCount())
	}
	if len(g.GetParents(cell("B1"))) != 1 || len(g.GetChildren(cell("A1"))) != 1 {
		t.Error("duplicate edge was recorded twice")
	}
}

// wideRange builds one cell reading n cells, the shape of =SUM(A1:An).
func wideRange(n int) (*Graph, core.Address, []core.Address) {
	g := NewGraph()
	sum := core.Address{Sheet: "Sheet1", Col: 2, Row: 1}
	g.AddNode(sum)
	deps := make([]core.Address, n)
	for i := range deps {
		deps[i] = core.Address{Sheet: "Sheet1", Col: 1, Row: i + 1}
		g.AddNode(deps[i])
	}
	return g, sum, deps
}

func TestGraph_WideFanIn(t *testing.T) {
	const n = 50000
	g, sum, deps := wideRange(n)
	for _, dep := range deps {
		if err := g.AddEdge(dep, sum); err != nil {
			t.Fatal(err)
		}
	}
	// a second pass over the same range adds nothing
	for _, dep := range deps {
		if err := g.AddEdge(dep, sum); err != nil {
			t.Fatal(err)
		}
	}

	if g.EdgeCount() != n {
		t.Fatalf("expected %d edges, got %d", n, g.EdgeCount())
	}
	if len(g.GetParents(sum)) != n {
		t.Errorf("expected %d parents, got %d", n, len(g.GetParents(sum)))
	}
	order, err := g.Linearize()
	if err != nil {
		t.Fatal(err)
	}
	if order[len(order)-1] != sum {
		t.Errorf("expected %s last, got %s", sum, order[len(order)-1])
	}
}

func BenchmarkGraph_AddEdgeFanIn(b *testing.B) {
	for i := 0; i < b.N; i++ {
		g, sum, deps := wideRange(20000)
		for _, dep := range deps {
			_ = g.AddEdge(dep, sum)
		}
	}
}

func TestGraph_CrossSheetOrder(t *testing.T) {
	g := NewGraph()
	in := core.Address{Sheet: "Inputs", Col: 1, Row: 1}
	out := core.Address{Sheet: "Model", Col: 1, Row: 1}
	g.AddNode(out)
	g.AddNode(in)
	if err := g.AddEdge(in, out); err != nil {
		t.Fatal(err)
	}

	order, err := g.Linearize()
	if err != nil {
		t.Fatalf("failed to linearize: %v", err)
	}
	if len(order) != 2 || order[0] != in || order[1] != out {
		t.Errorf("expected [Inputs!A1 Model!A1], got %v", order)
	}
}
