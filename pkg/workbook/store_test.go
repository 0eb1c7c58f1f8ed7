package workbook

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(t *testing.T, ref string) core.Address {
	t.Helper()
	a, err := core.ParseAddress(ref)
	require.NoError(t, err)
	return a
}

func TestStore_SetAndCell(t *testing.T) {
	s := New()
	require.NoError(t, s.SetRaw("Sheet1", "A1", "3"))
	require.NoError(t, s.SetRaw("Sheet1", "B1", "=A1*2+1"))
	require.NoError(t, s.SetRaw("Sheet1", "C1", "label"))

	c, ok := s.Cell(addr(t, "Sheet1!B1"))
	require.True(t, ok)
	assert.Equal(t, core.Formula("A1*2+1"), c.Value)
	assert.Equal(t, core.RolePlain, c.Role)

	_, ok = s.Cell(addr(t, "Sheet1!D1"))
	assert.False(t, ok)

	assert.True(t, s.HasSheet("Sheet1"))
	assert.False(t, s.HasSheet("sheet1"))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, map[string]int{"Sheet1": 1}, s.Formulas())
}

func TestStore_EmptyValueClears(t *testing.T) {
	s := New()
	a := addr(t, "Sheet1!A1")
	require.NoError(t, s.Set(a, core.Number(1)))
	require.NoError(t, s.Set(a, core.Value{}))

	_, ok := s.Cell(a)
	assert.False(t, ok)
	assert.True(t, s.HasSheet("Sheet1"), "sheet survives its last cell")
}

func TestStore_Errors(t *testing.T) {
	s := New()
	assert.Error(t, s.AddSheet(""))
	assert.Error(t, s.Set(core.Address{Col: 1, Row: 1}, core.Number(1)))
	assert.Error(t, s.SetRaw("Sheet1", "1A", "3"))
}

func TestStore_OrderAndClone(t *testing.T) {
	s := New()
	require.NoError(t, s.AddSheet("Zeta"))
	require.NoError(t, s.SetRaw("Alpha", "B2", "1"))
	require.NoError(t, s.SetRaw("Alpha", "A2", "2"))
	require.NoError(t, s.SetRaw("Alpha", "C1", "3"))

	assert.Equal(t, []string{"Zeta", "Alpha"}, s.Sheets())
	assert.Equal(t, []string{"Alpha", "Zeta"}, s.SortedSheets())

	var got []string
	for _, a := range s.Addresses("Alpha") {
		got = append(got, a.Local())
	}
	assert.Equal(t, []string{"C1", "A2", "B2"}, got)

	c := s.Clone()
	require.NoError(t, c.SetRaw("Alpha", "A1", "9"))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 4, c.Len())
	assert.Len(t, c.Cells(), 4)
}

func TestLoadYAML(t *testing.T) {
	doc := `
sheets:
  Inputs:
    A1: 3
    A2: 1.5
    A3: true
    A4: "hello"
    A5: "42"
  Model:
    B1: "=Inputs!A1*2+1"
    B2: ~
  Empty:
`
	s, err := LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"Inputs", "Model", "Empty"}, s.Sheets())

	tests := []struct {
		ref  string
		want core.Value
	}{
		{"Inputs!A1", core.Number(3)},
		{"Inputs!A2", core.Number(1.5)},
		{"Inputs!A3", core.Bool(true)},
		{"Inputs!A4", core.Text("hello")},
		{"Inputs!A5", core.Text("42")},
		{"Model!B1", core.Formula("Inputs!A1*2+1")},
	}
	for _, tt := range tests {
		c, ok := s.Cell(addr(t, tt.ref))
		require.True(t, ok, tt.ref)
		assert.Equal(t, tt.want, c.Value, tt.ref)
	}

	_, ok := s.Cell(addr(t, "Model!B2"))
	assert.False(t, ok, "null cells are blank")
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"no sheets", "cells: {}\n"},
		{"sheets not mapping", "sheets: [a]\n"},
		{"sheet not mapping", "sheets:\n  S: 3\n"},
		{"bad address", "sheets:\n  S:\n    A0: 1\n"},
		{"nested value", "sheets:\n  S:\n    A1: [1, 2]\n"},
		{"bad yaml", "sheets: {\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.SetRaw("Sheet1", "A1", "3"))
	require.NoError(t, s.SetRaw("Sheet1", "A2", "0.25"))
	require.NoError(t, s.SetRaw("Sheet1", "B1", "=A1*2+1"))
	require.NoError(t, s.SetRaw("Sheet1", "C1", "TRUE"))
	require.NoError(t, s.Set(addr(t, "Sheet1!D1"), core.Text("7")))

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, s))

	back, err := LoadYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Cells(), back.Cells())
}

func TestLoadCSV(t *testing.T) {
	s := New()
	data := "3,=A1*2+1,,label\n0.5,TRUE\n"
	require.NoError(t, LoadCSV("Sheet1", strings.NewReader(data), s))

	c, ok := s.Cell(addr(t, "Sheet1!B1"))
	require.True(t, ok)
	assert.Equal(t, core.Formula("A1*2+1"), c.Value)

	c, ok = s.Cell(addr(t, "Sheet1!B2"))
	require.True(t, ok)
	assert.Equal(t, core.Bool(true), c.Value)

	_, ok = s.Cell(addr(t, "Sheet1!C1"))
	assert.False(t, ok)
	assert.Equal(t, 5, s.Len())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "book.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("sheets:\n  S:\n    A1: 1\n"), 0o644))
	s, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	csvDir := filepath.Join(dir, "sheets")
	require.NoError(t, os.Mkdir(csvDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, "Inputs.csv"), []byte("1,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, "Model.csv"), []byte("=Inputs!A1+Inputs!B1\n"), 0o644))
	s, err = LoadFile(csvDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inputs", "Model"}, s.Sheets())
	assert.Equal(t, 3, s.Len())

	csvPath := filepath.Join(csvDir, "Inputs.csv")
	s, err = LoadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, s.HasSheet("Inputs"))

	_, err = LoadFile(filepath.Join(dir, "book.xlsx"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "book.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = LoadFile(txt)
	assert.Error(t, err)
}
