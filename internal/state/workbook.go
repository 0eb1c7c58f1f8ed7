package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/workbook"
)

// SaveWorkbook replaces the stored workbook with wb.
func (s *SQLiteStore) SaveWorkbook(ctx context.Context, wb *workbook.Store) error {
	if s.db == nil {
		return errNotOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells`); err != nil {
		return fmt.Errorf("failed to clear cells: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheets`); err != nil {
		return fmt.Errorf("failed to clear sheets: %w", err)
	}

	for i, name := range wb.Sheets() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sheets (name, position) VALUES (?, ?)`,
			name, i,
		); err != nil {
			return fmt.Errorf("failed to insert sheet %s: %w", name, err)
		}
	}

	n := 0
	for _, cell := range wb.Cells() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cells (sheet, col, row, kind, raw) VALUES (?, ?, ?, ?, ?)`,
			cell.Address.Sheet, cell.Address.Col, cell.Address.Row, cell.Value.Kind.String(), cell.Value.Raw(),
		); err != nil {
			return fmt.Errorf("failed to insert cell %s: %w", cell.Address, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workbook: %w", err)
	}
	s.logger.Debug("workbook saved", "sheets", len(wb.Sheets()), "cells", n)
	return nil
}

// LoadWorkbook reads the stored workbook.
func (s *SQLiteStore) LoadWorkbook(ctx context.Context) (*workbook.Store, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	wb := workbook.New()
	if err := s.loadSheets(ctx, wb); err != nil {
		return nil, err
	}
	if err := s.loadCells(ctx, wb); err != nil {
		return nil, err
	}

	s.logger.Debug("workbook loaded", "sheets", len(wb.Sheets()), "cells", wb.Len())
	return wb, nil
}

// loadSheets releases its rows before returning; an in-memory store has a
// single connection.
func (s *SQLiteStore) loadSheets(ctx context.Context, wb *workbook.Store) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sheets ORDER BY position`)
	if err != nil {
		return fmt.Errorf("failed to query sheets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan sheet: %w", err)
		}
		if err := wb.AddSheet(name); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read sheets: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadCells(ctx context.Context, wb *workbook.Store) error {
	rows, err := s.db.QueryContext(ctx, `SELECT sheet, col, row, kind, raw FROM cells ORDER BY sheet, row, col`)
	if err != nil {
		return fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			addr      core.Address
			kind, raw string
		)
		if err := rows.Scan(&addr.Sheet, &addr.Col, &addr.Row, &kind, &raw); err != nil {
			return fmt.Errorf("failed to scan cell: %w", err)
		}
		v, err := decodeValue(kind, raw)
		if err != nil {
			return fmt.Errorf("cell %s: %w", addr, err)
		}
		if err := wb.Set(addr, v); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read cells: %w", err)
	}
	return nil
}

// decodeValue restores a value from its stored kind, so text that looks
// like a number stays text.
func decodeValue(kind, raw string) (core.Value, error) {
	switch kind {
	case core.KindNumber.String():
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.Value{}, fmt.Errorf("invalid number %q", raw)
		}
		return core.Number(f), nil
	case core.KindText.String():
		return core.Text(raw), nil
	case core.KindBool.String():
		return core.Bool(raw == "TRUE"), nil
	case core.KindFormula.String():
		return core.Formula(raw), nil
	default:
		return core.Value{}, fmt.Errorf("unknown value kind %q", kind)
	}
}
