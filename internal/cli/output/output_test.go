package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := map[string]OutputMode{
		"":         ModeAuto,
		"auto":     ModeAuto,
		"TEXT":     ModeText,
		"markdown": ModeMarkdown,
		"json":     ModeJSON,
		"html":     ModeAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, Mode(in), in)
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
		{"", false, ModeMarkdown},
	}
	for _, tt := range tests {
		r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
		assert.Equal(t, tt.want, r.EffectiveMode(), "mode %q tty %v", tt.mode, tt.isTTY)
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_Markdown(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	r := NewRendererWithTTY(out, errOut, false, ModeMarkdown)

	r.Header(1, "Outputs")
	r.Table([]string{"name", "value"}, [][]string{{"y", "7"}, {"a|b", "1"}})
	r.Success("done")
	r.Error("failed")

	got := out.String()
	assert.Contains(t, got, "# Outputs\n")
	assert.Contains(t, got, "| name | value |\n| --- | --- |\n| y | 7 |\n")
	assert.Contains(t, got, `| a\|b | 1 |`)
	assert.Contains(t, got, "✓ done")
	assert.NotContains(t, got, "\x1b[")
	assert.Contains(t, errOut.String(), "✗ failed")
}

func TestRenderer_TextTable(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeText)
	r.Table([]string{"cell", "formula"}, [][]string{{"Sheet1!B1", "A1*2"}})

	got := out.String()
	assert.Contains(t, got, "CELL")
	assert.Contains(t, got, "Sheet1!B1")
	assert.Contains(t, got, "┌")
	assert.NotContains(t, got, "\x1b[", "non-TTY output carries no escape codes")
}

func TestRenderer_JSON(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeJSON)
	require.NoError(t, r.JSON(FunctionsOutput{Total: 1, Functions: []FunctionInfo{{Name: "SUM", Kind: "builtin", Arity: "1+"}}}))
	assert.True(t, strings.HasPrefix(out.String(), "{\n  \"functions\""))
	assert.Contains(t, out.String(), `"name": "SUM"`)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Levels", FormatHeader(2, "Levels"))
	assert.Equal(t, "# X", FormatHeader(0, "X"))
	assert.Equal(t, "- **id**: 42", FormatKeyValue("id", "42"))
	assert.Equal(t, "```python\nx = 1\n```", FormatCodeBlock("python", "x = 1"))
	assert.Equal(t, "```\nx\n```", FormatCodeBlock("", "x\n"))
}
