// Package core defines the shared language of the leapcell formula compiler.
//
// This package contains:
//   - Cell addressing (Address, Range) and raw cell contents (Value, Cell)
//   - The Workbook interface consumed by the compiler pipeline
//   - Every error kind the pipeline can surface
//
// The Golden Rule: pkg/core imports ONLY pkg/token and stdlib.
// All other packages depend on core, not the reverse.
package core
