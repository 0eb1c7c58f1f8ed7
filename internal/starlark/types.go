// Package starlark runs generated programs: value conversion, the
// spreadsheet runtime module, predeclared globals and pooled threads.
package starlark

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// ToStarlark converts a Go scalar to a Starlark value. Numbers become
// floats so generated arithmetic never mixes int and float semantics.
// Supported types: float64, float32, int kinds, bool, string and core.Value.
func ToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case float64:
		return starlark.Float(val), nil
	case float32:
		return starlark.Float(val), nil
	case int:
		return starlark.Float(val), nil
	case int64:
		return starlark.Float(val), nil
	case int32:
		return starlark.Float(val), nil
	case uint:
		return starlark.Float(val), nil
	case uint64:
		return starlark.Float(val), nil
	case uint32:
		return starlark.Float(val), nil
	case bool:
		return starlark.Bool(val), nil
	case string:
		return starlark.String(val), nil
	case core.Value:
		return valueToStarlark(val)
	case starlark.Value:
		return val, nil
	case nil:
		return nil, fmt.Errorf("nil value")
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func valueToStarlark(v core.Value) (starlark.Value, error) {
	switch v.Kind {
	case core.KindNumber:
		return starlark.Float(v.Number), nil
	case core.KindBool:
		return starlark.Bool(v.Bool), nil
	case core.KindText:
		return starlark.String(v.Text), nil
	}
	return nil, fmt.Errorf("cannot pass %s value", v.Kind)
}

// ToGo converts a program result to float64, bool or string.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		f, ok := starlark.AsFloat(val)
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val)
		}
		return f, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.String:
		return string(val), nil
	default:
		return nil, fmt.Errorf("unexpected %s result", v.Type())
	}
}

// ToFloat converts a numeric argument of a user function. Booleans count
// as 1 and 0.
func ToFloat(v starlark.Value) (float64, error) {
	switch val := v.(type) {
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		f, ok := starlark.AsFloat(val)
		if !ok || math.IsInf(f, 0) {
			return 0, fmt.Errorf("integer %s out of range", val)
		}
		return f, nil
	case starlark.Bool:
		if val {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("want number, got %s", v.Type())
}
