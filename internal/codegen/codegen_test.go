package codegen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcell/internal/dag"
	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

func addr(t *testing.T, ref string) core.Address {
	t.Helper()
	a, err := core.ParseCellRef("Sheet1", ref)
	require.NoError(t, err)
	return a
}

func bind(t *testing.T, name, ref string) NamedAddress {
	t.Helper()
	return NamedAddress{Name: name, Address: addr(t, ref)}
}

// request builds a generation request for cells on Sheet1, ordering them
// the way the compiler does.
func request(t *testing.T, reg *functions.Registry, raw map[string]string, inputs, outputs []NamedAddress) Request {
	t.Helper()
	req := Request{
		Exprs:     make(map[core.Address]formula.Node),
		Cells:     make(map[core.Address]core.Cell),
		Inputs:    inputs,
		Outputs:   outputs,
		Functions: reg,
	}
	isInput := make(map[core.Address]bool)
	for _, in := range inputs {
		isInput[in.Address] = true
	}

	g := dag.NewGraph()
	for ref, text := range raw {
		a := addr(t, ref)
		v := core.ParseRaw(text)
		req.Cells[a] = core.Cell{Address: a, Value: v}
		g.AddNode(a)
		if v.IsFormula() && !isInput[a] {
			node, err := formula.ParseCell(a, v.Text, reg)
			require.NoError(t, err)
			req.Exprs[a] = node
		}
	}
	for a, node := range req.Exprs {
		for _, dep := range formula.Dependencies(node) {
			require.True(t, g.HasNode(dep), "test cell %s reads undefined %s", a, dep)
			require.NoError(t, g.AddEdge(dep, a))
		}
	}
	order, err := g.Linearize()
	require.NoError(t, err)
	req.Order = order
	return req
}

func generate(t *testing.T, raw map[string]string, inputs, outputs []NamedAddress, fold bool) *Program {
	t.Helper()
	req := request(t, functions.Default(), raw, inputs, outputs)
	req.FoldConstants = fold
	prog, err := Generate(req)
	require.NoError(t, err)
	return prog
}

func generateErr(t *testing.T, raw map[string]string, inputs, outputs []NamedAddress) error {
	t.Helper()
	req := request(t, functions.Default(), raw, inputs, outputs)
	req.FoldConstants = true
	_, err := Generate(req)
	require.Error(t, err)
	return err
}

func TestGenerate_Structure(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "3", "B1": "=A1*2+1"},
		nil,
		[]NamedAddress{bind(t, "out", "B1")},
		false,
	)

	assert.Equal(t, EntryName, prog.Entry)
	assert.Contains(t, prog.Source, "# Code generated by leapcell. DO NOT EDIT.\n")
	assert.Contains(t, prog.Source, "#   out = Sheet1!B1 (number)\n")
	assert.Contains(t, prog.Source, "def evaluate():\n")
	assert.Contains(t, prog.Source, "    # Sheet1!A1: 3\n    sheet1_a1 = 3.0\n")
	assert.Contains(t, prog.Source, "    sheet1_b1 = (sheet1_a1 * 2.0) + 1.0\n")
	assert.Contains(t, prog.Source, "    return (sheet1_b1,)\n")
	assert.Equal(t, []core.Address{addr(t, "A1"), addr(t, "B1")}, prog.Order)
	assert.Equal(t, []string{"out"}, prog.OutputNames())
	assert.Empty(t, prog.InputNames())
}

func TestGenerate_ConstantFolding(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "3", "B1": "=A1*2+1", "C1": "=2^3^2", "D1": "=\"n=\"&A1"},
		nil,
		[]NamedAddress{bind(t, "b", "B1"), bind(t, "c", "C1"), bind(t, "d", "D1")},
		true,
	)

	assert.Contains(t, prog.Source, "    sheet1_b1 = 7.0\n")
	assert.Contains(t, prog.Source, "    sheet1_c1 = 512.0\n")
	assert.Contains(t, prog.Source, "    sheet1_d1 = \"n=3\"\n")
	assert.Contains(t, prog.Source, "    return (sheet1_b1, sheet1_c1, sheet1_d1,)\n")
}

func TestGenerate_DivisionByZeroIsNotFolded(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "=1/0"},
		nil,
		[]NamedAddress{bind(t, "out", "A1")},
		true,
	)
	assert.Contains(t, prog.Source, "    sheet1_a1 = 1.0 / 0.0\n")
}

func TestGenerate_Inputs(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "3", "B1": "=A1*2+1"},
		[]NamedAddress{bind(t, "x", "A1")},
		[]NamedAddress{bind(t, "out", "B1")},
		true,
	)

	assert.Contains(t, prog.Source, "def evaluate(x):\n")
	assert.Contains(t, prog.Source, "    sheet1_b1 = (x * 2.0) + 1.0\n")
	assert.NotContains(t, prog.Source, "sheet1_a1")
	require.Len(t, prog.Inputs, 1)
	assert.Equal(t, Binding{Name: "x", Address: addr(t, "A1"), Kind: core.KindNumber, Ident: "x"}, prog.Inputs[0])
	assert.Equal(t, []core.Address{addr(t, "B1")}, prog.Order)
}

func TestGenerate_InputOverridesFormula(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "=NOSUCHTHING", "B1": "=A1+1"},
		[]NamedAddress{bind(t, "x", "A1")},
		[]NamedAddress{bind(t, "out", "B1")},
		true,
	)
	assert.Contains(t, prog.Source, "    sheet1_b1 = x + 1.0\n")
}

func TestGenerate_OutputThatIsAnInput(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "1"},
		[]NamedAddress{bind(t, "x", "A1")},
		[]NamedAddress{bind(t, "y", "A1")},
		true,
	)
	assert.Contains(t, prog.Source, "    return (x,)\n")
	assert.Equal(t, "x", prog.Outputs[0].Ident)
}

func TestGenerate_InputKindFollowsStoredValue(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "abc", "B1": "=A1=\"ABC\"", "C1": "=A1&\"!\""},
		[]NamedAddress{bind(t, "name", "A1")},
		[]NamedAddress{bind(t, "same", "B1"), bind(t, "loud", "C1")},
		true,
	)

	assert.Equal(t, core.KindText, prog.Inputs[0].Kind)
	assert.Contains(t, prog.Source, "    sheet1_b1 = name.lower() == \"ABC\".lower()\n")
	assert.Contains(t, prog.Source, "    sheet1_c1 = _xl.concat([name, \"!\"])\n")
	assert.Equal(t, core.KindBool, prog.Outputs[0].Kind)
	assert.Equal(t, core.KindText, prog.Outputs[1].Kind)
}

func TestGenerate_LocalNamesAvoidInputs(t *testing.T) {
	prog := generate(t,
		map[string]string{"A1": "1", "B1": "=A1+1"},
		[]NamedAddress{bind(t, "sheet1_b1", "A1")},
		[]NamedAddress{bind(t, "out", "B1")},
		true,
	)
	assert.Contains(t, prog.Source, "    sheet1_b1_2 = sheet1_b1 + 1.0\n")
}

func TestGenerate_SheetNamesAreSanitized(t *testing.T) {
	a := core.Address{Sheet: "My Sheet", Col: 1, Row: 1}
	b := core.Address{Sheet: "my_sheet", Col: 1, Row: 1}
	req := Request{
		Order: []core.Address{a, b},
		Cells: map[core.Address]core.Cell{
			a: {Address: a, Value: core.Number(1)},
			b: {Address: b, Value: core.Number(2)},
		},
		Outputs:   []NamedAddress{{Name: "a", Address: a}, {Name: "b", Address: b}},
		Functions: functions.Default(),
	}
	prog, err := Generate(req)
	require.NoError(t, err)

	assert.Contains(t, prog.Source, "    # 'My Sheet'!A1: 1\n    my_sheet_a1 = 1.0\n")
	assert.Contains(t, prog.Source, "    my_sheet_a1_2 = 2.0\n")
}

func TestGenerate_Deterministic(t *testing.T) {
	raw := map[string]string{
		"A1": "1", "A2": "2", "A3": "3",
		"B1": "=SUM(A1:A3)", "B2": "=B1*A2", "C1": "=IF(B2>5, B1, 0)",
	}
	inputs := []NamedAddress{bind(t, "a", "A1")}
	outputs := []NamedAddress{bind(t, "c", "C1"), bind(t, "b", "B2")}

	first := generate(t, raw, inputs, outputs, true)
	for i := 0; i < 5; i++ {
		again := generate(t, raw, inputs, outputs, true)
		assert.Equal(t, first.Source, again.Source)
	}
}

func TestGenerate_BindingErrors(t *testing.T) {
	raw := map[string]string{"A1": "1", "B1": "=A1"}
	outputs := []NamedAddress{bind(t, "out", "B1")}

	t.Run("invalid name", func(t *testing.T) {
		err := generateErr(t, raw, []NamedAddress{bind(t, "1x", "A1")}, outputs)
		var invalid *core.InvalidBindingError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "1x", invalid.Name)
	})

	t.Run("reserved name", func(t *testing.T) {
		err := generateErr(t, raw, []NamedAddress{bind(t, "lambda", "A1")}, outputs)
		var invalid *core.InvalidBindingError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("duplicate name", func(t *testing.T) {
		err := generateErr(t, map[string]string{"A1": "1", "A2": "2", "B1": "=A1+A2"},
			[]NamedAddress{bind(t, "x", "A1"), bind(t, "x", "A2")}, outputs)
		var dup *core.DuplicateBindingError
		require.ErrorAs(t, err, &dup)
		assert.True(t, dup.ByName)
	})

	t.Run("unresolved output", func(t *testing.T) {
		err := generateErr(t, raw, nil, []NamedAddress{bind(t, "out", "Z9")})
		var unresolved *core.UnresolvedReferenceError
		require.ErrorAs(t, err, &unresolved)
		assert.Equal(t, addr(t, "Z9"), unresolved.Ref)
	})
}

func TestGenerate_UnsupportedExpressions(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]string
		inputs  []NamedAddress
		at      string
		message string
	}{
		{
			name:    "text arithmetic",
			raw:     map[string]string{"A1": "abc", "B1": "=A1+1"},
			at:      "B1",
			message: "text used in arithmetic",
		},
		{
			name:    "range as scalar",
			raw:     map[string]string{"A1": "1", "A2": "2", "B1": "=A1:A2+1"},
			at:      "B1",
			message: "a range is used where a single value is required",
		},
		{
			name:    "range in scalar function",
			raw:     map[string]string{"A1": "1", "A2": "2", "B1": "=SQRT(A1:A2)"},
			at:      "B1",
			message: "does not accept a range",
		},
		{
			name:    "mixed branches",
			raw:     map[string]string{"A1": "1", "B1": "=IF(A1>0, \"yes\", 0)"},
			inputs:  []NamedAddress{{Name: "x"}},
			at:      "B1",
			message: "mix text",
		},
		{
			name:    "mixed comparison",
			raw:     map[string]string{"A1": "1", "B1": "=A1=TRUE"},
			inputs:  []NamedAddress{{Name: "x"}},
			at:      "B1",
			message: "cannot compare",
		},
		{
			name:    "odd IFS",
			raw:     map[string]string{"A1": "1", "B1": "=IFS(A1>0, 1, A1<0)"},
			inputs:  []NamedAddress{{Name: "x"}},
			at:      "B1",
			message: "pairs",
		},
		{
			name:    "lookup without range",
			raw:     map[string]string{"A1": "1", "B1": "=VLOOKUP(1, A1, 1)"},
			at:      "B1",
			message: "expects a range",
		},
		{
			name:    "sumproduct size mismatch",
			raw:     map[string]string{"A1": "1", "A2": "2", "B1": "1", "C1": "=SUMPRODUCT(A1:A2, B1:B1)"},
			at:      "C1",
			message: "differ in size",
		},
		{
			name:    "sumx2my2 size mismatch",
			raw:     map[string]string{"A1": "1", "A2": "2", "B1": "1", "C1": "=SUMX2MY2(A1:A2, B1:B1)"},
			at:      "C1",
			message: "differ in size",
		},
		{
			name:    "maxifs without a criterion",
			raw:     map[string]string{"A1": "1", "A2": "2", "C1": "=MAXIFS(A1:A2, A1:A2, 1, A1:A2)"},
			at:      "C1",
			message: "range and criterion pairs",
		},
		{
			name:    "maxifs size mismatch",
			raw:     map[string]string{"A1": "1", "A2": "2", "C1": "=MAXIFS(A1:A2, A1:A1, 1)"},
			at:      "C1",
			message: "differ in size",
		},
		{
			name:    "range as criterion",
			raw:     map[string]string{"A1": "1", "A2": "2", "B1": "1", "B2": "2", "C1": "=AVERAGEIF(A1:A2, B1:B2)"},
			at:      "C1",
			message: "does not accept a range as argument 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inputs []NamedAddress
			for _, in := range tt.inputs {
				inputs = append(inputs, bind(t, in.Name, "A1"))
			}
			err := generateErr(t, tt.raw, inputs, []NamedAddress{bind(t, "out", tt.at)})

			var unsupported *core.UnsupportedExpressionError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, addr(t, tt.at), unsupported.Address)
			assert.Contains(t, unsupported.Reason, tt.message)
		})
	}
}

func TestGenerate_NonFiniteLiterals(t *testing.T) {
	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		req := request(t, functions.Default(), map[string]string{"A1": "1", "B1": "=A1+1"}, nil, []NamedAddress{bind(t, "out", "B1")})
		a1 := addr(t, "A1")
		req.Cells[a1] = core.Cell{Address: a1, Value: core.Number(f)}

		_, err := Generate(req)
		var unsupported *core.UnsupportedExpressionError
		require.ErrorAs(t, err, &unsupported, "value %v", f)
		assert.Equal(t, a1, unsupported.Address)
		assert.Contains(t, unsupported.Reason, "not a finite number")
	}
}

func TestGenerate_NumberLikeTextStaysText(t *testing.T) {
	for _, raw := range []string{"inf", "Infinity", "NaN", "0x1p-2", "1_000"} {
		err := generateErr(t, map[string]string{"A1": raw, "B1": "=A1+1"}, nil, []NamedAddress{bind(t, "out", "B1")})
		var unsupported *core.UnsupportedExpressionError
		require.ErrorAs(t, err, &unsupported, "cell %q", raw)
		assert.Contains(t, unsupported.Reason, "text used in arithmetic")
	}
}

func TestGenerate_Aggregates(t *testing.T) {
	raw := map[string]string{
		"A1": "1", "A2": "label", "A3": "3",
		"B1": "=SUM(A1:A3)",
		"B2": "=AVERAGE(A1:A3, TRUE)",
		"B3": "=COUNT(A1:A3, 5, TRUE, \"7\", \"x\")",
		"B4": "=COUNTA(A1:A3)",
	}
	outputs := []NamedAddress{bind(t, "b1", "B1"), bind(t, "b2", "B2"), bind(t, "b3", "B3"), bind(t, "b4", "B4")}

	t.Run("unfolded", func(t *testing.T) {
		prog := generate(t, raw, nil, outputs, false)
		assert.Contains(t, prog.Source, "    sheet1_b1 = sheet1_a1 + sheet1_a3\n")
		assert.Contains(t, prog.Source, "    sheet1_b2 = _xl.average([sheet1_a1, sheet1_a3, 1.0])\n")
		assert.Contains(t, prog.Source, "    sheet1_b3 = 5.0\n")
		assert.Contains(t, prog.Source, "    sheet1_b4 = 3.0\n")
	})

	t.Run("folded", func(t *testing.T) {
		prog := generate(t, raw, nil, outputs, true)
		assert.Contains(t, prog.Source, "    sheet1_b1 = 4.0\n")
	})
}

func TestGenerate_ProductAndLogical(t *testing.T) {
	prog := generate(t,
		map[string]string{
			"A1": "2", "A2": "TRUE",
			"B1": "=PRODUCT(A1, 3)",
			"B2": "=AND(A2, A1>1)",
			"B3": "=NOT(A1)",
			"B4": "=CONCAT(\"a\", 1, TRUE)",
		},
		[]NamedAddress{bind(t, "x", "A1"), bind(t, "flag", "A2")},
		[]NamedAddress{bind(t, "b1", "B1"), bind(t, "b2", "B2"), bind(t, "b3", "B3"), bind(t, "b4", "B4")},
		true,
	)

	assert.Contains(t, prog.Source, "    sheet1_b1 = x * 3.0\n")
	assert.Contains(t, prog.Source, "    sheet1_b2 = _xl.all([flag, x > 1.0])\n")
	assert.Contains(t, prog.Source, "    sheet1_b3 = not (x != 0)\n")
	assert.Contains(t, prog.Source, "    sheet1_b4 = \"a1TRUE\"\n")
	assert.Equal(t, core.KindBool, prog.Outputs[2].Kind)
}

func TestGenerate_Conditionals(t *testing.T) {
	raw := map[string]string{
		"A1": "1",
		"B1": "=IF(A1>0, 1, TRUE)",
		"B2": "=IF(A1>0, 5)",
		"B3": "=IFS(A1>1, 10, TRUE, 0)",
		"B4": "=IFS(A1>1, 10)",
		"B5": "=SWITCH(A1, 1, \"one\", 2, \"two\", \"many\")",
		"B6": "=SWITCH(A1, 1, \"one\", \"x\", \"never\")",
		"B7": "=IF(TRUE, A1, 0)",
	}
	outputs := []NamedAddress{
		bind(t, "b1", "B1"), bind(t, "b2", "B2"), bind(t, "b3", "B3"), bind(t, "b4", "B4"),
		bind(t, "b5", "B5"), bind(t, "b6", "B6"), bind(t, "b7", "B7"),
	}
	prog := generate(t, raw, []NamedAddress{bind(t, "x", "A1")}, outputs, true)

	assert.Contains(t, prog.Source, "    sheet1_b1 = 1.0 if (x > 0.0) else 1.0\n")
	assert.Contains(t, prog.Source, "    sheet1_b2 = 5.0 if (x > 0.0) else 0.0\n")
	assert.Contains(t, prog.Source, "    sheet1_b3 = 10.0 if (x > 1.0) else 0.0\n")
	assert.Contains(t, prog.Source, "    sheet1_b4 = 10.0 if (x > 1.0) else fail(\"#N/A IFS: no condition is true\")\n")
	assert.Contains(t, prog.Source, "    sheet1_b5 = \"one\" if (x == 1.0) else (\"two\" if (x == 2.0) else \"many\")\n")
	assert.Contains(t, prog.Source, "    sheet1_b6 = \"one\" if (x == 1.0) else fail(\"#N/A SWITCH: no value matches\")\n")
	assert.Contains(t, prog.Source, "    sheet1_b7 = x\n")

	kinds := make([]core.ValueKind, len(prog.Outputs))
	for i, out := range prog.Outputs {
		kinds[i] = out.Kind
	}
	assert.Equal(t, []core.ValueKind{
		core.KindNumber, core.KindNumber, core.KindNumber, core.KindNumber,
		core.KindText, core.KindText, core.KindNumber,
	}, kinds)
}

func TestGenerate_ScalarFunctions(t *testing.T) {
	prog := generate(t,
		map[string]string{
			"A1": "2",
			"B1": "=SQRT(A1)",
			"B2": "=ROUND(A1, 2)",
			"B3": "=PI()*A1",
			"B4": "=ISEVEN(A1)",
			"B5": "=POWER(A1, TRUE)",
		},
		[]NamedAddress{bind(t, "x", "A1")},
		[]NamedAddress{bind(t, "b1", "B1"), bind(t, "b2", "B2"), bind(t, "b3", "B3"), bind(t, "b4", "B4"), bind(t, "b5", "B5")},
		true,
	)

	assert.Contains(t, prog.Source, "    sheet1_b1 = math.sqrt(x)\n")
	assert.Contains(t, prog.Source, "    sheet1_b2 = _xl.round(x, 2.0)\n")
	assert.Contains(t, prog.Source, "    sheet1_b3 = math.pi * x\n")
	assert.Contains(t, prog.Source, "    sheet1_b4 = _xl.iseven(x)\n")
	assert.Contains(t, prog.Source, "    sheet1_b5 = math.pow(x, 1.0)\n")
	assert.Equal(t, core.KindBool, prog.Outputs[3].Kind)
}

func TestGenerate_Lookups(t *testing.T) {
	raw := map[string]string{
		"A1": "1", "B1": "one",
		"A2": "2", "B2": "two",
		"D1": "2",
		"E1": "=VLOOKUP(D1, A1:B2, 2, FALSE)",
		"E2": "=MATCH(D1, A1:A2, 0)",
		"E3": "=INDEX(A1:B2, 2, 1)",
		"E4": "=CHOOSE(2, 10, 20)",
		"E5": "=CHOOSE(D1, 10, TRUE)",
		"E6": "=SUMPRODUCT(A1:A2, B1:B2)",
	}
	outputs := []NamedAddress{
		bind(t, "e1", "E1"), bind(t, "e2", "E2"), bind(t, "e3", "E3"),
		bind(t, "e4", "E4"), bind(t, "e5", "E5"), bind(t, "e6", "E6"),
	}
	prog := generate(t, raw, []NamedAddress{bind(t, "y", "D1")}, outputs, true)

	grid := "[[sheet1_a1, sheet1_b1], [sheet1_a2, sheet1_b2]]"
	assert.Contains(t, prog.Source, "    sheet1_e1 = _xl.vlookup(y, "+grid+", 2.0, 0.0)\n")
	assert.Contains(t, prog.Source, "    sheet1_e2 = _xl.match(y, [[sheet1_a1], [sheet1_a2]], 0.0)\n")
	assert.Contains(t, prog.Source, "    sheet1_e3 = _xl.index("+grid+", 2.0, 1.0)\n")
	assert.Contains(t, prog.Source, "    sheet1_e4 = 20.0\n")
	assert.Contains(t, prog.Source, "    sheet1_e5 = _xl.choose(y, [10.0, 1.0])\n")
	assert.Contains(t, prog.Source, "    sheet1_e6 = _xl.sumproduct([[[sheet1_a1], [sheet1_a2]], [[0.0], [0.0]]])\n")

	assert.Equal(t, core.KindText, prog.Outputs[0].Kind)
	assert.Equal(t, core.KindNumber, prog.Outputs[1].Kind)
	assert.Equal(t, core.KindNumber, prog.Outputs[2].Kind)
}

func TestGenerate_LookupResultKind(t *testing.T) {
	raw := map[string]string{
		"A1": "1", "B1": "one",
		"A2": "2", "B2": "two",
		"C1": "=LOOKUP(2, A1:A2, B1:B2)",
		"C2": "=LOOKUP(2, A1:B2)",
		"C3": "=LOOKUP(2, A1:A2)",
	}
	outputs := []NamedAddress{bind(t, "c1", "C1"), bind(t, "c2", "C2"), bind(t, "c3", "C3")}
	prog := generate(t, raw, nil, outputs, true)

	assert.Contains(t, prog.Source, "    sheet1_c1 = _xl.lookup(2.0, [[sheet1_a1], [sheet1_a2]], [[sheet1_b1], [sheet1_b2]])\n")
	assert.Equal(t, core.KindText, prog.Outputs[0].Kind)
	assert.Equal(t, core.KindText, prog.Outputs[1].Kind)
	assert.Equal(t, core.KindNumber, prog.Outputs[2].Kind)
}

func TestGenerate_Criteria(t *testing.T) {
	raw := map[string]string{
		"A1": "1", "B1": "a",
		"A2": "2", "B2": "b",
		"C1": "=AVERAGEIF(B1:B2, \"a\", A1:A2)",
		"C2": "=MAXIFS(A1:A2, B1:B2, \"b\", A1:A2, \">0\")",
		"C3": "=MINIFS(A1:A2, B1:B2, D1)",
		"D1": "a",
	}
	outputs := []NamedAddress{bind(t, "c1", "C1"), bind(t, "c2", "C2"), bind(t, "c3", "C3")}
	prog := generate(t, raw, []NamedAddress{bind(t, "key", "D1")}, outputs, true)

	col := func(c string) string {
		return "[[sheet1_" + c + "1], [sheet1_" + c + "2]]"
	}
	assert.Contains(t, prog.Source, "    sheet1_c1 = _xl.averageif("+col("b")+", \"a\", "+col("a")+")\n")
	assert.Contains(t, prog.Source, "    sheet1_c2 = _xl.maxifs("+col("a")+", ["+col("b")+", "+col("a")+"], [\"b\", \">0\"])\n")
	assert.Contains(t, prog.Source, "    sheet1_c3 = _xl.minifs("+col("a")+", ["+col("b")+"], [key])\n")
	for _, out := range prog.Outputs {
		assert.Equal(t, core.KindNumber, out.Kind, out.Name)
	}
}

func TestGenerate_TypeTests(t *testing.T) {
	raw := map[string]string{
		"A1": "1", "B1": "abc", "C1": "0",
		"D1": "=ISBLANK(C1)",
		"D2": "=ISNUMBER(C1)",
		"D3": "=ISNUMBER(A1)",
		"D4": "=ISTEXT(B1)",
		"D5": "=ISNONTEXT(A1>0)",
		"D6": "=ISLOGICAL(A1>0)",
		"D7": "=TYPE(B1)",
		"D8": "=TYPE(TRUE)",
		"D9": "=ISBLANK(E1)",
		"E1": "0",
	}
	outputs := []NamedAddress{
		bind(t, "d1", "D1"), bind(t, "d2", "D2"), bind(t, "d3", "D3"),
		bind(t, "d4", "D4"), bind(t, "d5", "D5"), bind(t, "d6", "D6"),
		bind(t, "d7", "D7"), bind(t, "d8", "D8"), bind(t, "d9", "D9"),
	}
	req := request(t, functions.Default(), raw, []NamedAddress{bind(t, "e", "E1")}, outputs)
	req.Blanks = []core.Address{addr(t, "C1"), addr(t, "E1")}
	prog, err := Generate(req)
	require.NoError(t, err)

	want := map[string]string{
		"d1": "True", "d2": "False", "d3": "True",
		"d4": "True", "d5": "True", "d6": "True",
		"d7": "2.0", "d8": "4.0",
		// a bound input is never blank
		"d9": "False",
	}
	for name, code := range want {
		assert.Contains(t, prog.Source, "    sheet1_"+name+" = "+code+"\n", name)
	}
}

func TestGenerate_UserFunctions(t *testing.T) {
	reg := functions.Default()
	require.NoError(t, reg.RegisterFunc("double", core.Exactly(1), func(args ...float64) (float64, error) {
		return args[0] * 2, nil
	}))

	req := request(t, reg,
		map[string]string{"A1": "5", "B1": "=DOUBLE(A1)", "B2": "=DOUBLE(B1)+1"},
		[]NamedAddress{bind(t, "x", "A1")},
		[]NamedAddress{bind(t, "out", "B2")},
	)
	req.FoldConstants = true
	prog, err := Generate(req)
	require.NoError(t, err)

	assert.Contains(t, prog.Source, "    sheet1_b1 = _udf_double(x)\n")
	assert.Contains(t, prog.Source, "    sheet1_b2 = _udf_double(sheet1_b1) + 1.0\n")
	require.Len(t, prog.UserFunctions, 1)
	assert.Equal(t, "_udf_double", prog.UserFunctions[0].Global)
	assert.Equal(t, "DOUBLE", prog.UserFunctions[0].Func.Name())
}

func TestGenerate_UnknownFunctionAtGeneration(t *testing.T) {
	reg := functions.Default()
	require.NoError(t, reg.RegisterFunc("TWICE", core.Exactly(1), func(args ...float64) (float64, error) {
		return args[0] * 2, nil
	}))
	req := request(t, reg, map[string]string{"A1": "1", "B1": "=TWICE(A1)"}, nil, []NamedAddress{bind(t, "out", "B1")})

	req.Functions = functions.Default()
	_, err := Generate(req)

	var unsupported *core.UnsupportedFunctionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "TWICE", unsupported.Name)
	assert.Equal(t, addr(t, "B1"), unsupported.Address)
}

func TestValidIdentifier(t *testing.T) {
	for _, name := range []string{"x", "Revenue", "net_income", "a1"} {
		assert.True(t, ValidIdentifier(name), name)
	}
	for _, name := range []string{"", "1x", "_x", "has space", "def", "True", "math", "_xl", "evaluate", "naïve"} {
		assert.False(t, ValidIdentifier(name), name)
	}
}

func TestFloatLiteral(t *testing.T) {
	assert.Equal(t, "1.0", floatLiteral(1))
	assert.Equal(t, "0.5", floatLiteral(0.5))
	assert.Equal(t, "1e+21", floatLiteral(1e21))
	assert.Equal(t, "-2.0", floatLiteral(-2))
}
