package commands

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/output"
	"github.com/leapstack-labs/leapcell/pkg/compiler"
)

// EvalOptions holds options for the eval command.
type EvalOptions struct {
	Set      []string
	Batch    string
	Bindings bindingFlags
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Compile the workbook and evaluate its outputs",
		Long: `Compile the workbook and call the resulting function.

Input values are given with --set name=value. Numbers, TRUE/FALSE and
text are accepted; inputs left unset fail unless cell_defaults is enabled.

With --batch, every record of a CSV file is one call: the header row names
the inputs and each following row supplies their values.`,
		Example: `  # Evaluate with one input
  leapcell eval --set rate=0.05

  # Evaluate many scenarios at once
  leapcell eval --batch scenarios.csv --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Set, "set", "s", nil, "Set an input value as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "Evaluate one row per record of a CSV file")
	opts.Bindings.register(cmd)

	return cmd
}

func runEval(cmd *cobra.Command, opts *EvalOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)

	if opts.Batch != "" && len(opts.Set) > 0 {
		return errors.New("--set and --batch cannot be combined")
	}

	var rows []map[string]any
	if opts.Batch != "" {
		f, err := os.Open(opts.Batch)
		if err != nil {
			return fmt.Errorf("failed to open batch file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if rows, err = readBatch(f); err != nil {
			return fmt.Errorf("%s: %w", opts.Batch, err)
		}
	} else {
		args, err := parseAssignments(opts.Set)
		if err != nil {
			return err
		}
		rows = []map[string]any{args}
	}

	inputs, outputs, err := opts.Bindings.resolve(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	project, err := cmdCtx.OpenProject(ctx, inputs, outputs)
	if err != nil {
		return err
	}
	art, err := project.Compiler.Compile(ctx)
	if err != nil {
		return err
	}

	results, errs := art.CallBatch(ctx, rows)
	if opts.Batch == "" && errs[0] != nil {
		return errs[0]
	}
	return renderEval(cmdCtx.Renderer, art, rows, results, errs, opts.Batch != "")
}

// readBatch reads CSV records keyed by the header row.
func readBatch(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	var rows []map[string]any
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(header))
		for i, name := range header {
			// empty fields leave the input unset
			if v := strings.TrimSpace(record[i]); v != "" {
				row[name] = parseValue(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func renderEval(r *output.Renderer, art *compiler.Artifact, rows []map[string]any, results []*compiler.Outputs, errs []error, batch bool) error {
	names := make([]string, len(art.Outputs()))
	for i, b := range art.Outputs() {
		names[i] = b.Name
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := output.EvalOutput{Outputs: names, Rows: make([]output.EvalRow, len(rows))}
		for i := range rows {
			row := output.EvalRow{Inputs: rows[i]}
			if errs[i] != nil {
				row.Error = errs[i].Error()
			} else {
				row.Outputs = results[i].Map()
			}
			out.Rows[i] = row
		}
		return r.JSON(out)
	}

	if !batch {
		table := make([][]string, len(names))
		for i, name := range names {
			v, _ := results[0].Get(name)
			table[i] = []string{name, art.Outputs()[i].Address.String(), formatValue(v)}
		}
		r.Header(1, "Outputs")
		r.Table([]string{"name", "cell", "value"}, table)
		return nil
	}

	inputNames := make([]string, len(art.Inputs()))
	for i, b := range art.Inputs() {
		inputNames[i] = b.Name
	}
	headers := append(append([]string{"row"}, inputNames...), names...)
	headers = append(headers, "error")

	failed := 0
	table := make([][]string, len(rows))
	for i, row := range rows {
		line := []string{strconv.Itoa(i + 1)}
		for _, name := range inputNames {
			line = append(line, formatValue(row[name]))
		}
		for _, name := range names {
			var v any
			if errs[i] == nil {
				v, _ = results[i].Get(name)
			}
			line = append(line, formatValue(v))
		}
		msg := ""
		if errs[i] != nil {
			msg = errs[i].Error()
			failed++
		}
		table[i] = append(line, msg)
	}

	r.Header(1, "Batch Results")
	r.Table(headers, table)
	if failed > 0 {
		r.Warning(fmt.Sprintf("%d of %d rows failed", failed, len(rows)))
	}
	return nil
}
