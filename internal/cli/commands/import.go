package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy the workbook into a SQLite database",
		Long: `Copy every sheet and cell of the configured workbook into a SQLite
database. The database can then be used as a workbook itself
(--workbook file.db). An existing workbook in the database is replaced.`,
		Example: `  leapcell import --workbook model.yaml --to model.db`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if to == "" {
				return errors.New("--to is required")
			}
			cmdCtx := NewCommandContext(cmd)
			wb, err := cmdCtx.LoadWorkbook(cmd.Context())
			if err != nil {
				return err
			}

			store, err := cmdCtx.OpenState(to)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.SaveWorkbook(cmd.Context(), wb); err != nil {
				return err
			}

			cmdCtx.Renderer.Success(fmt.Sprintf("Imported %d sheets, %d cells into %s", len(wb.Sheets()), wb.Len(), to))
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Path of the SQLite database to write")
	return cmd
}
