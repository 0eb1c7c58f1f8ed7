// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

// TestWorkbook is the workbook written by SetupTestProject: a loan
// schedule where Model!B4 is the interest due and Model!B5 the total.
const TestWorkbook = `sheets:
  Model:
    A1: principal
    B1: 1000
    A2: rate
    B2: 0.05
    A3: years
    B3: 2
    B4: "=B1*B2*B3"
    B5: "=ROUND(B1+B4, 2)"
    B6: "=TAX(B5)"
`

// TestConfig is the leapcell.yaml written by SetupTestProject.
const TestConfig = `workbook: workbook.yaml
functions_dir: functions
inputs:
  - name: principal
    cell: Model!B1
  - name: rate
    cell: Model!B2
  - name: years
    cell: Model!B3
outputs:
  - name: interest
    cell: Model!B4
  - name: total
    cell: Model!B5
environments:
  zero:
    blank_cells: zero
`

// TestFunctions is the functions file written by SetupTestProject.
const TestFunctions = `def tax(amount, rate=0.2):
    """Tax due on an amount."""
    return amount * rate
`

// SetupTestProject creates a temporary project with a workbook, a
// configuration file and one user-defined function.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "functions"), 0o755); err != nil {
		t.Fatalf("failed to create functions directory: %v", err)
	}

	files := map[string]string{
		"workbook.yaml":          TestWorkbook,
		"leapcell.yaml":          TestConfig,
		"functions/finance.star": TestFunctions,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return tmpDir
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI fails the test when s carries terminal escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("output contains ANSI escape codes: %q", s)
	}
}
