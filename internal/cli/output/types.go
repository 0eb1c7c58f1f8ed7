package output

// BindingInfo is a named input or output cell.
type BindingInfo struct {
	Name string `json:"name"`
	Cell string `json:"cell"`
	Kind string `json:"kind,omitempty"`
}

// CompileOutput is the JSON result of the compile command.
type CompileOutput struct {
	ID         string        `json:"id"`
	Backend    string        `json:"backend"`
	Inputs     []BindingInfo `json:"inputs"`
	Outputs    []BindingInfo `json:"outputs"`
	Cells      int           `json:"cells"`
	SourceHash string        `json:"source_hash"`
	Source     string        `json:"source"`
}

// EvalRow holds the outputs of one evaluation, or its error.
type EvalRow struct {
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// EvalOutput is the JSON result of the eval command.
type EvalOutput struct {
	Outputs []string  `json:"outputs"`
	Rows    []EvalRow `json:"rows"`
}

// GraphNode is one reachable cell.
type GraphNode struct {
	Cell      string   `json:"cell"`
	Role      string   `json:"role,omitempty"`
	Formula   string   `json:"formula,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// GraphOutput is the JSON result of the graph command.
type GraphOutput struct {
	Order     []GraphNode `json:"order"`
	Levels    [][]string  `json:"levels"`
	Roots     []string    `json:"roots"`
	Leaves    []string    `json:"leaves"`
	Edges     int         `json:"edges"`
	Formulas  int         `json:"formulas"`
	CacheHits int         `json:"cache_hits"`
}

// FunctionInfo describes a registered function.
type FunctionInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Arity  string `json:"arity"`
	Doc    string `json:"doc,omitempty"`
	Source string `json:"source,omitempty"`
}

// FunctionsOutput is the JSON result of the functions command.
type FunctionsOutput struct {
	Functions []FunctionInfo `json:"functions"`
	Total     int            `json:"total"`
}

// CompilationInfo is one entry of the compilation history.
type CompilationInfo struct {
	ID         string   `json:"id"`
	Workbook   string   `json:"workbook"`
	Backend    string   `json:"backend"`
	Inputs     []string `json:"inputs"`
	Outputs    []string `json:"outputs"`
	SourceHash string   `json:"source_hash,omitempty"`
	Cells      int      `json:"cells"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"created_at"`
}
