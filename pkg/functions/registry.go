package functions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrFrozen is returned when registering into a frozen registry.
var ErrFrozen = errors.New("function registry is frozen")

// Normalize returns the registry key for a function name: trimmed,
// upper-cased and without the "_xlfn." prefix.
func Normalize(name string) string {
	// Casers are stateful, so each call gets its own.
	n := cases.Upper(language.Und).String(strings.TrimSpace(name))
	return strings.TrimPrefix(n, "_XLFN.")
}

// Registry maps normalized function names to descriptors.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Descriptor
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Default returns a new registry holding every builtin function.
func Default() *Registry {
	r := NewRegistry()
	for _, b := range builtins() {
		r.byName[b.name] = b
	}
	return r
}

// Register adds a descriptor. It fails with *core.DuplicateFunctionError when
// the name is taken and with ErrFrozen after Freeze.
func (r *Registry) Register(d Descriptor) error {
	if d == nil {
		return errors.New("register: nil descriptor")
	}
	name := Normalize(d.Name())
	if !validName(name) {
		return fmt.Errorf("register: invalid function name %q", d.Name())
	}
	if u, ok := d.(*UserDefined); ok {
		if u.Fn == nil && u.FnContext == nil {
			return fmt.Errorf("register %s: nil callable", name)
		}
		if u.arity.Variadic() || u.arity.Min < 0 || u.arity.Max < u.arity.Min {
			return fmt.Errorf("register %s: user functions need a fixed arity, got %s", name, u.arity)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: %w", name, ErrFrozen)
	}
	if _, exists := r.byName[name]; exists {
		return &core.DuplicateFunctionError{Name: name}
	}
	r.byName[name] = d
	return nil
}

// RegisterFunc registers fn under name with the given arity.
func (r *Registry) RegisterFunc(name string, arity core.Arity, fn Func) error {
	return r.Register(NewUserDefined(name, arity, fn))
}

// Lookup returns the descriptor for name, or *core.UnsupportedFunctionError.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	key := Normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[key]
	if !ok {
		return nil, &core.UnsupportedFunctionError{Name: key}
	}
	return d, nil
}

// Signature implements formula.Catalog.
func (r *Registry) Signature(name string) (string, core.Arity, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return "", core.Arity{}, err
	}
	return d.Name(), d.Arity(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all descriptors sorted by name.
func (r *Registry) All() []Descriptor {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}

// UserDefined returns the user-defined descriptors sorted by name.
func (r *Registry) UserDefined() []*UserDefined {
	var out []*UserDefined
	for _, d := range r.All() {
		if u, ok := d.(*UserDefined); ok {
			out = append(out, u)
		}
	}
	return out
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// validName accepts letters, digits, "_" and "." with a leading letter.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_' || c == '.'):
		default:
			return false
		}
	}
	return true
}
