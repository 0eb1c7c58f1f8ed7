package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/output"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded compilations",
		Long: `List the compilations recorded in the state database, newest first.
Compilations are recorded by the compile command when a state database is
configured.`,
		Example: `  leapcell history --state .leapcell/state.db
  leapcell history --limit 5 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of compilations to show (0 for all)")
	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cmdCtx := NewCommandContext(cmd)
	if cmdCtx.Cfg.StatePath == "" {
		return errors.New("no state database configured\nHint: Use --state or set state_path in leapcell.yaml")
	}

	store, err := cmdCtx.OpenState(cmdCtx.Cfg.StatePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListCompilations(cmd.Context(), limit)
	if err != nil {
		return err
	}

	infos := make([]output.CompilationInfo, len(records))
	for i, c := range records {
		infos[i] = output.CompilationInfo{
			ID:         c.ID,
			Workbook:   c.Workbook,
			Backend:    c.Backend,
			Inputs:     c.Inputs,
			Outputs:    c.Outputs,
			SourceHash: c.SourceHash,
			Cells:      c.Cells,
			Error:      c.Error,
			CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	rows := make([][]string, len(infos))
	for i, c := range infos {
		status := "ok " + shortHash(c.SourceHash)
		if c.Error != "" {
			status = "failed: " + firstLine(c.Error)
		}
		rows[i] = []string{c.CreatedAt, c.Workbook, strings.Join(c.Outputs, ", "), fmt.Sprint(c.Cells), status}
	}
	r.Header(1, "Compilations")
	r.Table([]string{"created", "workbook", "outputs", "cells", "status"}, rows)
	return nil
}

// shortHash abbreviates a source hash for tables.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
