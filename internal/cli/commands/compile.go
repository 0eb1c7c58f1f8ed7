package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/config"
	"github.com/leapstack-labs/leapcell/internal/cli/output"
	"github.com/leapstack-labs/leapcell/internal/state"
	"github.com/leapstack-labs/leapcell/pkg/compiler"
)

// CompileOptions holds options for the compile command.
type CompileOptions struct {
	Write    string
	Bindings bindingFlags
}

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the workbook into a function",
		Long: `Compile the formulas reachable from the declared outputs into a single
Starlark function of the declared inputs and print its source.

When a state database is configured (--state or state_path), every
compilation is recorded there, including failed ones.`,
		Example: `  # Print the generated function
  leapcell compile

  # Compile ad-hoc bindings and write the source to a file
  leapcell compile --in rate=Inputs!B2 --out total=Model!C10 -w model.star

  # Record the compilation in a state database
  leapcell compile --state .leapcell/state.db --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompile(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Write, "write", "w", "", "Write the generated source to a file")
	opts.Bindings.register(cmd)

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	inputs, outputs, err := opts.Bindings.resolve(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	project, err := cmdCtx.OpenProject(ctx, inputs, outputs)
	if err != nil {
		return err
	}

	art, compileErr := project.Compiler.Compile(ctx)
	if err := recordCompilation(ctx, cmdCtx, inputs, outputs, art, compileErr); err != nil {
		r.Warning(fmt.Sprintf("failed to record compilation: %v", err))
	}
	if compileErr != nil {
		return compileErr
	}

	if opts.Write != "" {
		if err := os.WriteFile(opts.Write, []byte(art.Source()), 0o644); err != nil { //nolint:gosec // generated source is not secret
			return fmt.Errorf("failed to write source: %w", err)
		}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.CompileOutput{
			ID:         art.ID().String(),
			Backend:    art.Backend(),
			Inputs:     bindingInfos(art.Inputs()),
			Outputs:    bindingInfos(art.Outputs()),
			Cells:      len(art.Order()),
			SourceHash: sourceHash(art.Source()),
			Source:     art.Source(),
		})
	case output.ModeMarkdown:
		return compileMarkdown(r, art, opts.Write)
	default:
		return compileText(r, art, opts.Write)
	}
}

func compileText(r *output.Renderer, art *compiler.Artifact, written string) error {
	styles := r.Styles()
	if written != "" {
		r.Success(fmt.Sprintf("Compiled %d cells into %s", len(art.Order()), written))
		return nil
	}
	r.Print(styles.Code.Render(art.Source()))
	r.Println(styles.Muted.Render(fmt.Sprintf("# %d cells, %d inputs, %d outputs (%s)",
		len(art.Order()), len(art.Inputs()), len(art.Outputs()), art.ID())))
	return nil
}

func compileMarkdown(r *output.Renderer, art *compiler.Artifact, written string) error {
	r.Println(output.FormatHeader(1, "Compiled Function"))
	r.Println("")
	r.Println(output.FormatKeyValue("ID", art.ID().String()))
	r.Println(output.FormatKeyValue("Backend", art.Backend()))
	r.Println(output.FormatKeyValue("Cells", fmt.Sprint(len(art.Order()))))
	if written != "" {
		r.Println(output.FormatKeyValue("Written to", written))
	}
	r.Println("")

	rows := make([][]string, 0, len(art.Inputs())+len(art.Outputs()))
	for _, b := range art.Inputs() {
		rows = append(rows, []string{"input", b.Name, b.Address.String(), b.Kind.String()})
	}
	for _, b := range art.Outputs() {
		rows = append(rows, []string{"output", b.Name, b.Address.String(), b.Kind.String()})
	}
	r.Table([]string{"role", "name", "cell", "kind"}, rows)
	r.Println("")

	if written == "" {
		r.Println(output.FormatCodeBlock("python", art.Source()))
	}
	return nil
}

// recordCompilation stores the outcome in the configured state database.
// Without one it does nothing.
func recordCompilation(ctx context.Context, cmdCtx *CommandContext, inputs, outputs []config.Binding, art *compiler.Artifact, compileErr error) error {
	path := cmdCtx.Cfg.StatePath
	if path == "" {
		return nil
	}
	store, err := cmdCtx.OpenState(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	c := &state.Compilation{
		Workbook: cmdCtx.Cfg.Workbook,
		Backend:  cmdCtx.Cfg.Backend,
		Inputs:   bindingStrings(inputs),
		Outputs:  bindingStrings(outputs),
	}
	if compileErr != nil {
		c.Error = compileErr.Error()
	} else {
		c.ID = art.ID().String()
		c.Backend = art.Backend()
		c.SourceHash = sourceHash(art.Source())
		c.Cells = len(art.Order())
	}
	return store.RecordCompilation(ctx, c)
}

func bindingStrings(bs []config.Binding) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name + "=" + b.Cell
	}
	return out
}

func sourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
