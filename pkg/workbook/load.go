package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile loads a workbook by extension: .yaml/.yml documents, a single
// .csv sheet, or a directory of .csv sheets. SQLite workbooks are loaded by
// the state package.
func LoadFile(path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access workbook: %w", err)
	}
	if info.IsDir() {
		return LoadCSVDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAMLFile(path)
	case ".csv":
		store := New()
		if err := LoadCSVFile(path, store); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported workbook format %q", filepath.Ext(path))
	}
}
