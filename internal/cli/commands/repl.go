package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/output"
	"github.com/leapstack-labs/leapcell/pkg/compiler"
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	var bindings bindingFlags

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Evaluate the workbook interactively",
		Long: `Compile the workbook once, then read name=value assignments and print
the outputs after each one. Assigned values persist between lines.`,
		Example: `  leapcell repl
  leapcell> rate=0.05
  leapcell> years=10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, &bindings)
		},
	}

	bindings.register(cmd)
	return cmd
}

func runREPL(cmd *cobra.Command, bindings *bindingFlags) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)

	inputs, outputs, err := bindings.resolve(cmdCtx.Cfg)
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

	historyFile := ""
	if p := cmdCtx.Cfg.StatePath; p != "" && p != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(p), "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "leapcell> ",
		HistoryFile:     historyFile,
		AutoComplete:    newInputCompleter(art),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s := newREPLSession(art, cmdCtx.Renderer)
	r := cmdCtx.Renderer
	r.Printf("leapcell REPL (%d inputs, %d outputs)\n", len(art.Inputs()), len(art.Outputs()))
	r.Println("Type name=value to set an input, .help for commands, .quit to exit")
	r.Println()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := s.handle(ctx, line); quit {
			return nil
		}
	}
}

// replSession holds the assigned inputs of one REPL.
type replSession struct {
	art  *compiler.Artifact
	r    *output.Renderer
	args map[string]any
}

func newREPLSession(art *compiler.Artifact, r *output.Renderer) *replSession {
	return &replSession{art: art, r: r, args: make(map[string]any)}
}

// handle processes one line and reports whether the session should end.
func (s *replSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, ".") {
		return s.dotCommand(ctx, line)
	}

	args, err := parseAssignments(strings.Split(line, ";"))
	if err != nil {
		s.r.Error(err.Error())
		return false
	}
	for name, v := range args {
		s.args[name] = v
	}
	s.evaluate(ctx)
	return false
}

func (s *replSession) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		s.r.Print(replHelp)
	case ".inputs":
		names := make([]string, 0, len(s.art.Inputs()))
		for _, b := range s.art.Inputs() {
			v, ok := s.args[b.Name]
			value := formatValue(v)
			if !ok {
				value = "(unset)"
			}
			names = append(names, fmt.Sprintf("%s (%s, %s) = %s", b.Name, b.Address, b.Kind, value))
		}
		s.r.Println(strings.Join(names, "\n"))
	case ".unset":
		for _, name := range parts[1:] {
			delete(s.args, name)
		}
	case ".reset":
		s.args = make(map[string]any)
	case ".eval":
		s.evaluate(ctx)
	case ".source":
		s.r.Print(s.art.Source())
	default:
		s.r.Error(fmt.Sprintf("Unknown command: %s (type .help for commands)", parts[0]))
	}
	return false
}

func (s *replSession) evaluate(ctx context.Context) {
	out, err := s.art.Call(ctx, s.args)
	if err != nil {
		s.r.Error(err.Error())
		return
	}
	for i, name := range out.Names() {
		s.r.Printf("%s = %s\n", name, formatValue(out.Values()[i]))
	}
}

const replHelp = `
Commands:
  name=value      Set an input and evaluate (separate several with ;)
  .inputs         Show the inputs and their current values
  .unset <name>   Forget an input value
  .reset          Forget all input values
  .eval           Evaluate with the current values
  .source         Show the generated function
  .quit / .exit   Exit the REPL
`

// newInputCompleter completes input names and dot-commands.
func newInputCompleter(art *compiler.Artifact) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, b := range art.Inputs() {
		items = append(items, readline.PcItem(b.Name+"="))
	}
	for _, c := range []string{".help", ".inputs", ".unset", ".reset", ".eval", ".source", ".quit", ".exit"} {
		items = append(items, readline.PcItem(c))
	}
	return readline.NewPrefixCompleter(items...)
}
