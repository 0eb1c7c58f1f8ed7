package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/output"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "functions [prefix]",
		Short: "List the functions formulas may call",
		Long: `List every function a formula may call: the builtins and the
user-defined functions loaded from the functions directory (.star files).`,
		Example: `  # List all functions
  leapcell functions

  # Only user-defined functions
  leapcell functions --kind user

  # Functions starting with "SUM"
  leapcell functions sum`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = functions.Normalize(args[0])
			}
			return runFunctions(cmd, kind, prefix)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (builtin|user)")
	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"builtin", "user"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runFunctions(cmd *cobra.Command, kind, prefix string) error {
	cmdCtx := NewCommandContext(cmd)
	if kind != "" && kind != "builtin" && kind != "user" {
		return fmt.Errorf("invalid kind %q (want builtin or user)", kind)
	}

	reg, _, err := cmdCtx.Registry()
	if err != nil {
		return err
	}

	descs := reg.All()
	if kind == "user" {
		descs = descs[:0:0]
		for _, u := range reg.UserDefined() {
			descs = append(descs, u)
		}
	}

	var infos []output.FunctionInfo
	for _, d := range descs {
		if kind != "" && d.Kind().String() != kind {
			continue
		}
		if !strings.HasPrefix(d.Name(), prefix) {
			continue
		}
		infos = append(infos, functionInfo(d))
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(output.FunctionsOutput{Functions: infos, Total: len(infos)})
	}

	rows := make([][]string, len(infos))
	for i, f := range infos {
		doc := firstLine(f.Doc)
		if f.Source != "" {
			doc = strings.TrimSpace(doc + " (" + f.Source + ")")
		}
		rows[i] = []string{f.Name, f.Kind, f.Arity, doc}
	}
	r.Header(1, "Functions")
	r.Table([]string{"name", "kind", "arguments", "description"}, rows)
	r.Muted(fmt.Sprintf("%d functions", len(infos)))
	return nil
}

func functionInfo(d functions.Descriptor) output.FunctionInfo {
	info := output.FunctionInfo{
		Name:  d.Name(),
		Kind:  d.Kind().String(),
		Arity: d.Arity().String(),
	}
	switch f := d.(type) {
	case *functions.Builtin:
		info.Doc = f.Doc
	case *functions.UserDefined:
		info.Doc = f.Doc
		info.Source = f.Source
	}
	return info
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
