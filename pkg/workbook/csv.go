package workbook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// LoadCSV reads one sheet from CSV: record i, field j holds the raw content
// of row i+1, column j+1. Empty fields are blank cells.
func LoadCSV(sheet string, r io.Reader, into *Store) error {
	if err := into.AddSheet(sheet); err != nil {
		return err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sheet %s: %w", sheet, err)
		}
		for i, raw := range record {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			addr := core.Address{Sheet: sheet, Col: i + 1, Row: row}
			if addr.Col > core.MaxColumns {
				return fmt.Errorf("sheet %s row %d: too many columns", sheet, row)
			}
			if err := into.Set(addr, core.ParseRaw(raw)); err != nil {
				return err
			}
		}
	}
}

// LoadCSVFile reads path as a single sheet named after the file.
func LoadCSVFile(path string, into *Store) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is the user's workbook
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return LoadCSV(SheetName(path), f, into)
}

// LoadCSVDir reads every *.csv file of dir as one sheet, in file name order.
func LoadCSVDir(dir string) (*Store, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan workbook directory: %w", err)
	}
	store := New()
	for _, file := range files {
		if err := LoadCSVFile(file, store); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// SheetName derives a sheet name from a file path ("data/Inputs.csv" -> "Inputs").
func SheetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
