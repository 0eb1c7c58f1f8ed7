package macro

// Static parsing extracts function metadata without executing a file.

import (
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// ParsedFunction represents a public function of a .star file.
type ParsedFunction struct {
	Name      string   `json:"name"`
	Args      []string `json:"args"` // with defaults, like "digits=2"
	Docstring string   `json:"docstring"`
	Line      int      `json:"line"`

	// Required and Optional count plain and defaulted parameters.
	Required int  `json:"required"`
	Optional int  `json:"optional"`
	Variadic bool `json:"variadic"` // has *args or **kwargs
}

// ParsedNamespace represents a parsed .star file.
type ParsedNamespace struct {
	Name      string            `json:"name"`
	FilePath  string            `json:"file_path"`
	Functions []*ParsedFunction `json:"functions"`
}

// ParseStarlarkFile statically parses a .star file and extracts function metadata.
func ParseStarlarkFile(filename string, content []byte) (*ParsedNamespace, error) {
	f, err := (&syntax.FileOptions{}).Parse(filename, content, 0)
	if err != nil {
		return nil, &ParseError{File: filename, Message: err.Error()}
	}

	ns := &ParsedNamespace{
		Name:     strings.TrimSuffix(filepath.Base(filename), ".star"),
		FilePath: filename,
	}

	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}

		fn := &ParsedFunction{
			Name:      def.Name.Name,
			Line:      int(def.Name.NamePos.Line),
			Docstring: extractDocstring(def.Body),
		}
		for _, param := range def.Params {
			arg, kind := describeParam(param)
			fn.Args = append(fn.Args, arg)
			switch kind {
			case paramRequired:
				fn.Required++
			case paramOptional:
				fn.Optional++
			default:
				fn.Variadic = true
			}
		}
		ns.Functions = append(ns.Functions, fn)
	}

	return ns, nil
}

type paramKind int

const (
	paramRequired paramKind = iota
	paramOptional
	paramVariadic
)

// describeParam renders one parameter and classifies it.
func describeParam(param syntax.Expr) (string, paramKind) {
	switch p := param.(type) {
	case *syntax.Ident:
		return p.Name, paramRequired
	case *syntax.BinaryExpr:
		if ident, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
			return ident.Name + "=" + exprToString(p.Y), paramOptional
		}
	case *syntax.UnaryExpr:
		prefix := "*"
		if p.Op == syntax.STARSTAR {
			prefix = "**"
		}
		if ident, ok := p.X.(*syntax.Ident); ok {
			return prefix + ident.Name, paramVariadic
		}
		// bare * separating keyword-only parameters
		return prefix, paramVariadic
	}
	return "...", paramVariadic
}

// extractDocstring gets the docstring from function body if present.
func extractDocstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	exprStmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := exprStmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, ok := lit.Value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// exprToString converts a default value expression to a short string.
func exprToString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprToString(e.X)
		}
		return exprToString(e.X)
	default:
		return "..."
	}
}

// ParseError represents an error during static parsing.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + filepath.Base(e.File) + ": " + e.Message
}

// Signature returns a human-readable signature, such as "tax(amount, rate=0.2)".
func (f *ParsedFunction) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}

// Arity returns the accepted argument counts.
func (f *ParsedFunction) Arity() core.Arity {
	return core.Between(f.Required, f.Required+f.Optional)
}

// HasDocstring returns true if the function has a docstring.
func (f *ParsedFunction) HasDocstring() bool {
	return f.Docstring != ""
}
