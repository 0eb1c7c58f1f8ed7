// Package macro loads user-defined spreadsheet functions from .star files.
// Every public top-level function of a file becomes a function callable
// from formulas under its upper-cased name; the file name is its namespace.
package macro

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	starctx "github.com/leapstack-labs/leapcell/internal/starlark"
)

// Loader scans a directory for .star files and loads them as Starlark modules.
type Loader struct {
	dir    string
	pool   *starctx.ThreadPool
	logger *slog.Logger
}

// NewLoader creates a loader for dir. Loaded functions run on threads from
// pool; a nil pool gets a private one.
func NewLoader(dir string, pool *starctx.ThreadPool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if pool == nil {
		pool = starctx.NewThreadPool(0, logger)
	}
	return &Loader{dir: dir, pool: pool, logger: logger}
}

// LoadedModule represents an executed .star file.
type LoadedModule struct {
	// Namespace is derived from the filename ("finance" from "finance.star").
	Namespace string

	// Path is the path to the .star file.
	Path string

	// Exports holds the public functions, frozen.
	Exports map[string]*starlark.Function

	// Functions holds the static description of each export.
	Functions []*ParsedFunction
}

// Load scans the directory and loads all .star files in name order.
// A missing directory yields no modules.
func (l *Loader) Load() ([]*LoadedModule, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access functions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("functions path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan functions directory: %w", err)
	}
	sort.Strings(files)

	modules := make([]*LoadedModule, 0, len(files))
	for _, file := range files {
		module, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded function file", "path", file, "functions", len(module.Functions))
		modules = append(modules, module)
	}
	return modules, nil
}

// loadFile executes a single .star file and collects its public functions.
func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob within the functions directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	parsed, err := ParseStarlarkFile(path, content)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := l.pool.Get("load:" + namespace)
	predeclared := starlark.StringDict{"math": starlarkmath.Module}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, path, content, predeclared)
	l.pool.Put(thread)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}
	globals.Freeze()

	module := &LoadedModule{
		Namespace: namespace,
		Path:      path,
		Exports:   make(map[string]*starlark.Function),
	}
	for _, fn := range parsed.Functions {
		value, ok := globals[fn.Name].(*starlark.Function)
		if !ok {
			// rebound to a non-function after the def
			continue
		}
		if fn.Variadic {
			return nil, &LoadError{File: path, Message: fmt.Sprintf("%s: *args and **kwargs are not supported", fn.Name)}
		}
		module.Exports[fn.Name] = value
		module.Functions = append(module.Functions, fn)
	}
	return module, nil
}

// validateNamespace checks if a namespace name is valid.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("namespace must start with letter or underscore: %s", name)
			}
		} else if !isLetter(r) && !isDigit(r) && r != '_' {
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError represents an error loading a function file.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("functions/%s: %s", filepath.Base(e.File), e.Message)
}
