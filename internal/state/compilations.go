package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Compilation records one compile of a workbook.
type Compilation struct {
	ID       string
	Workbook string
	Backend  string
	// Inputs and Outputs hold "name=Sheet!A1" bindings in declaration order.
	Inputs     []string
	Outputs    []string
	SourceHash string
	// Cells counts the cells the generated function assigns.
	Cells     int
	Error     string
	CreatedAt time.Time
}

// RecordCompilation stores c. An empty ID or zero CreatedAt is filled in.
func (s *SQLiteStore) RecordCompilation(ctx context.Context, c *Compilation) error {
	if s.db == nil {
		return errNotOpen
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	inputs, err := json.Marshal(nonNil(c.Inputs))
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	outputs, err := json.Marshal(nonNil(c.Outputs))
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}
	var errMsg *string
	if c.Error != "" {
		errMsg = &c.Error
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO compilations (id, workbook, backend, inputs, outputs, source_hash, cells, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Workbook, c.Backend, string(inputs), string(outputs), c.SourceHash, c.Cells, errMsg,
		c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record compilation: %w", err)
	}
	s.logger.Debug("compilation recorded", "id", c.ID, "workbook", c.Workbook)
	return nil
}

// ListCompilations returns the most recent compilations, newest first.
// A limit of zero or less returns all of them.
func (s *SQLiteStore) ListCompilations(ctx context.Context, limit int) ([]*Compilation, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workbook, backend, inputs, outputs, source_hash, cells, error, created_at
		 FROM compilations ORDER BY created_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list compilations: %w", err)
	}
	defer rows.Close()

	var out []*Compilation
	for rows.Next() {
		var (
			c               Compilation
			inputs, outputs string
			errMsg          sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&c.ID, &c.Workbook, &c.Backend, &inputs, &outputs, &c.SourceHash, &c.Cells, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan compilation: %w", err)
		}
		if err := json.Unmarshal([]byte(inputs), &c.Inputs); err != nil {
			return nil, fmt.Errorf("compilation %s: invalid inputs: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(outputs), &c.Outputs); err != nil {
			return nil, fmt.Errorf("compilation %s: invalid outputs: %w", c.ID, err)
		}
		if errMsg.Valid {
			c.Error = errMsg.String
		}
		if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("compilation %s: invalid timestamp: %w", c.ID, err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read compilations: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
