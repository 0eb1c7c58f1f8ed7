package workbook

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"gopkg.in/yaml.v3"
)

// LoadYAML reads a workbook document of the form
//
//	sheets:
//	  Sheet1:
//	    A1: 3
//	    B1: "=A1*2+1"
//	    C1: "label"
//
// Sheet and cell order follow the document.
func LoadYAML(r io.Reader) (*Store, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to parse workbook YAML: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: workbook must be a mapping", root.Line)
	}

	sheets := mappingValue(root, "sheets")
	if sheets == nil {
		return nil, fmt.Errorf("line %d: workbook has no sheets key", root.Line)
	}
	if sheets.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: sheets must be a mapping", sheets.Line)
	}

	store := New()
	for i := 0; i+1 < len(sheets.Content); i += 2 {
		name, body := sheets.Content[i].Value, sheets.Content[i+1]
		if err := store.AddSheet(name); err != nil {
			return nil, fmt.Errorf("line %d: %w", sheets.Content[i].Line, err)
		}
		if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
			continue
		}
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: sheet %q must be a mapping of cells", body.Line, name)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, val := body.Content[j], body.Content[j+1]
			addr, err := core.ParseLocal(name, key.Value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", key.Line, err)
			}
			v, err := scalarValue(val)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", val.Line, addr, err)
			}
			if err := store.Set(addr, v); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// LoadYAMLFile reads a YAML workbook from path.
func LoadYAMLFile(path string) (*Store, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the user's workbook
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// WriteYAML writes the store in the format LoadYAML reads.
func WriteYAML(w io.Writer, s *Store) error {
	sheets := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range s.Sheets() {
		body := &yaml.Node{Kind: yaml.MappingNode}
		for _, a := range s.Addresses(name) {
			c, _ := s.Cell(a)
			body.Content = append(body.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: a.Local()},
				valueNode(c.Value))
		}
		sheets.Content = append(sheets.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: name}, body)
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "sheets"}, sheets,
	}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to write workbook YAML: %w", err)
	}
	return enc.Close()
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// scalarValue maps YAML tags onto cell values. Quoted strings stay text
// unless they start with "=".
func scalarValue(n *yaml.Node) (core.Value, error) {
	if n.Kind != yaml.ScalarNode {
		return core.Value{}, fmt.Errorf("cell value must be a scalar")
	}
	switch n.Tag {
	case "!!null":
		return core.Value{}, nil
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64)
		if err != nil {
			return core.Value{}, fmt.Errorf("invalid number %q", n.Value)
		}
		return core.Number(f), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return core.Value{}, err
		}
		return core.Bool(b), nil
	default:
		if strings.HasPrefix(n.Value, "=") {
			return core.Formula(n.Value), nil
		}
		return core.Text(n.Value), nil
	}
}

func valueNode(v core.Value) *yaml.Node {
	switch v.Kind {
	case core.KindNumber:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.Raw()}
	case core.KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strings.ToLower(v.Raw())}
	case core.KindFormula:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Raw()}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Text, Style: yaml.DoubleQuotedStyle}
	}
}
