package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/cli/output"
	"github.com/leapstack-labs/leapcell/pkg/compiler"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Set      []string
	Debounce time.Duration
	Bindings bindingFlags
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate the workbook whenever it changes",
		Long: `Compile and evaluate the workbook, then watch the workbook file and
the functions directory. Every change recompiles and prints the outputs
again. Compile errors are reported and the watch continues.

Press Ctrl+C to stop.`,
		Example: `  leapcell watch --set rate=0.05`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Set, "set", "s", nil, "Set an input value as name=value (repeatable)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 100*time.Millisecond, "Quiet period before a change is picked up")
	opts.Bindings.register(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	args, err := parseAssignments(opts.Set)
	if err != nil {
		return err
	}
	inputs, outputs, err := opts.Bindings.resolve(cmdCtx.Cfg)
	if err != nil {
		return err
	}

	var prev *compiler.Plan
	evaluate := func() {
		project, err := cmdCtx.OpenProject(ctx, inputs, outputs)
		if err != nil {
			r.Error(err.Error())
			return
		}
		plan, err := project.Compiler.Plan(ctx)
		if err != nil {
			r.Error(err.Error())
			return
		}
		if prev != nil {
			reportChanges(r, plan, prev)
		}
		prev = plan
		art, err := project.Compiler.CompilePlan(ctx, plan)
		if err != nil {
			r.Error(err.Error())
			return
		}
		out, err := art.Call(ctx, args)
		if err != nil {
			r.Error(err.Error())
			return
		}
		r.Muted(time.Now().Format("15:04:05"))
		for i, name := range out.Names() {
			r.Printf("%s = %s\n", name, formatValue(out.Values()[i]))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	workbookPath := cmdCtx.Cfg.Workbook
	match, err := addWatches(watcher, workbookPath, cmdCtx.Cfg.FunctionsDir)
	if err != nil {
		return err
	}

	evaluate()
	r.Muted(fmt.Sprintf("Watching %s (Ctrl+C to stop)", workbookPath))

	changes := make(chan string, 1)
	go watchLoop(ctx, watcher, opts.Debounce, match, changes, func(err error) {
		cmdCtx.Logger.Warn("watch error", "error", err)
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case name, ok := <-changes:
			if !ok {
				return nil
			}
			cmdCtx.Logger.Debug("change detected", "file", name)
			r.Println("")
			evaluate()
		}
	}
}

// reportChanges prints the cells that differ from the previous plan and
// the outputs they reach.
func reportChanges(r *output.Renderer, plan, prev *compiler.Plan) {
	changed := plan.Changed(prev)
	if len(changed) == 0 {
		r.Muted("No cell changes")
		return
	}
	var names []string
	for _, out := range plan.Affected(changed) {
		names = append(names, out.Name)
	}
	affected := "no outputs"
	if len(names) > 0 {
		affected = strings.Join(names, ", ")
	}
	r.Muted(fmt.Sprintf("%d cells changed, affecting %s", len(changed), affected))
}

// addWatches watches the directory holding the workbook (editors often
// replace files rather than write them) and the functions directory. It
// returns a predicate for the event paths that matter.
func addWatches(w *fsnotify.Watcher, workbookPath, functionsDir string) (func(string) bool, error) {
	workbookPath = filepath.Clean(workbookPath)
	info, err := os.Stat(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("workbook does not exist: %s", workbookPath)
	}

	wbDir := workbookPath
	if !info.IsDir() {
		wbDir = filepath.Dir(workbookPath)
	}
	if err := w.Add(wbDir); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", wbDir, err)
	}

	fnDir := ""
	if functionsDir != "" {
		if fi, err := os.Stat(functionsDir); err == nil && fi.IsDir() {
			fnDir = filepath.Clean(functionsDir)
			if fnDir != wbDir {
				if err := w.Add(fnDir); err != nil {
					return nil, fmt.Errorf("failed to watch %s: %w", fnDir, err)
				}
			}
		}
	}

	return func(name string) bool {
		name = filepath.Clean(name)
		switch {
		case name == workbookPath:
			return true
		case info.IsDir() && filepath.Dir(name) == workbookPath && strings.EqualFold(filepath.Ext(name), ".csv"):
			return true
		case fnDir != "" && filepath.Dir(name) == fnDir && filepath.Ext(name) == ".star":
			return true
		default:
			return false
		}
	}, nil
}

// watchLoop forwards matching events to changes once no further event has
// arrived for delay. It closes changes when the watcher is closed.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, delay time.Duration, match func(string) bool, changes chan<- string, onError func(error)) {
	defer close(changes)

	var (
		timer   *time.Timer
		pending string
	)
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if !match(event.Name) {
				continue
			}
			pending = event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			select {
			case changes <- pending:
			default:
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			onError(err)
		}
	}
}
