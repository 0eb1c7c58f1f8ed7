package codegen

import (
	"strconv"
	"strings"
)

// reserved holds names a binding or local may not take: Starlark keywords,
// words the Starlark scanner reserves, universe builtins and the globals
// generated code relies on.
var reserved = map[string]bool{
	// keywords
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true,
	"load": true, "not": true, "or": true, "pass": true, "return": true,
	"while": true,
	// reserved by the scanner
	"as": true, "assert": true, "async": true, "await": true, "class": true,
	"del": true, "except": true, "finally": true, "from": true, "global": true,
	"import": true, "is": true, "nonlocal": true, "raise": true, "try": true,
	"with": true, "yield": true,
	// universe
	"None": true, "True": true, "False": true, "abs": true, "any": true,
	"all": true, "bool": true, "bytes": true, "dict": true, "dir": true,
	"enumerate": true, "fail": true, "float": true, "getattr": true,
	"hasattr": true, "hash": true, "int": true, "len": true, "list": true,
	"max": true, "min": true, "print": true, "range": true, "repr": true,
	"reversed": true, "set": true, "sorted": true, "str": true, "tuple": true,
	"type": true, "zip": true,
	// generated code globals
	"math":    true,
	"_xl":     true,
	EntryName: true,
}

// IsReserved reports whether name cannot be used as an identifier in
// generated code.
func IsReserved(name string) bool {
	return reserved[name]
}

// ValidIdentifier reports whether name can be a binding name: ASCII letters,
// digits and underscores, starting with a letter, and not reserved.
func ValidIdentifier(name string) bool {
	if name == "" || IsReserved(name) {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c == '_' || c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sanitize lower-cases s and replaces every character that cannot appear
// in an identifier with an underscore.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "sheet"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "s" + out
	}
	return out
}

// namer hands out unique identifiers.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

// claim reserves name exactly; it reports false when taken.
func (n *namer) claim(name string) bool {
	if n.used[name] || IsReserved(name) {
		return false
	}
	n.used[name] = true
	return true
}

// fresh returns base, or base_2, base_3, ... when base is taken.
func (n *namer) fresh(base string) string {
	if n.claim(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if n.claim(candidate) {
			return candidate
		}
	}
}
