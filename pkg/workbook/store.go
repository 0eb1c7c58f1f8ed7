// Package workbook provides the in-memory cell store and the loaders that
// populate it from YAML and CSV files.
package workbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// Store is an in-memory table of raw cell contents keyed by address.
// It implements core.Workbook and is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	sheets []string
	known  map[string]struct{}
	cells  map[core.Address]core.Value
}

// New creates an empty store.
func New() *Store {
	return &Store{
		known: make(map[string]struct{}),
		cells: make(map[core.Address]core.Value),
	}
}

// AddSheet registers a sheet, keeping first-seen order. Adding an existing
// sheet is a no-op.
func (s *Store) AddSheet(name string) error {
	if name == "" {
		return errors.New("sheet name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSheetLocked(name)
	return nil
}

func (s *Store) addSheetLocked(name string) {
	if _, ok := s.known[name]; !ok {
		s.known[name] = struct{}{}
		s.sheets = append(s.sheets, name)
	}
}

// Set stores v at addr, creating the sheet if needed. An empty value clears the cell.
func (s *Store) Set(addr core.Address, v core.Value) error {
	if addr.Sheet == "" {
		return fmt.Errorf("address %s has no sheet", addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addSheetLocked(addr.Sheet)
	if v.IsEmpty() {
		delete(s.cells, addr)
		return nil
	}
	s.cells[addr] = v
	return nil
}

// SetRaw parses ref on sheet and stores raw loader text there.
func (s *Store) SetRaw(sheet, ref, raw string) error {
	addr, err := core.ParseCellRef(sheet, ref)
	if err != nil {
		return err
	}
	return s.Set(addr, core.ParseRaw(raw))
}

// Cell implements core.Workbook.
func (s *Store) Cell(addr core.Address) (core.Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.cells[addr]
	if !ok {
		return core.Cell{}, false
	}
	return core.Cell{Address: addr, Value: v}, true
}

// HasSheet implements core.Workbook.
func (s *Store) HasSheet(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[name]
	return ok
}

// Sheets implements core.Workbook.
func (s *Store) Sheets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sheets...)
}

// Addresses implements core.Workbook.
func (s *Store) Addresses(sheet string) []core.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Address
	for a := range s.cells {
		if a.Sheet == sheet {
			out = append(out, a)
		}
	}
	core.SortAddresses(out)
	return out
}

// Cells returns every stored cell, sheet by sheet in workbook order.
func (s *Store) Cells() []core.Cell {
	var out []core.Cell
	for _, sheet := range s.Sheets() {
		for _, a := range s.Addresses(sheet) {
			if c, ok := s.Cell(a); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// Len returns the number of non-empty cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// Formulas counts the formula cells per sheet.
func (s *Store) Formulas() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for a, v := range s.cells {
		if v.IsFormula() {
			counts[a.Sheet]++
		}
	}
	return counts
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := New()
	for _, name := range s.sheets {
		c.addSheetLocked(name)
	}
	for a, v := range s.cells {
		c.cells[a] = v
	}
	return c
}

// SortedSheets returns sheet names alphabetically.
func (s *Store) SortedSheets() []string {
	names := s.Sheets()
	sort.Strings(names)
	return names
}
