package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hamba/avro/v2"
)

// Cast converts every field of doc known to d into its schema type.
// Unknown fields and values that cannot be converted are dropped.
// Nested records are not descended into.
func (d *Definition) Cast(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		f, ok := d.Field(k)
		if !ok {
			continue
		}
		if cv, err := castValue(f, v); err == nil {
			out[k] = cv
		}
	}
	return out
}

func castValue(f Field, v any) (any, error) {
	if v == nil {
		if f.Nullable || f.Type == avro.Null {
			return nil, nil
		}
		return nil, fmt.Errorf("null")
	}

	switch f.Type {
	case avro.Boolean:
		return castBool(v)
	case avro.Int:
		i, err := castInt(v)
		if err == nil && (i < math.MinInt32 || i > math.MaxInt32) {
			return nil, fmt.Errorf("%d overflows int", i)
		}
		return i, err
	case avro.Long:
		return castInt(v)
	case avro.Float, avro.Double:
		return castFloat(v)
	case avro.String, avro.Enum, avro.Fixed, avro.Bytes:
		return castString(v)
	case avro.Record, avro.Map:
		return castJSON[map[string]any](v)
	case avro.Array:
		return castJSON[[]any](v)
	case avro.Null:
		return nil, fmt.Errorf("expected null")
	default:
		return v, nil
	}
}

func castBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	return nil, fmt.Errorf("%T is not boolean", v)
}

func castInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return integral(f)
	case float64:
		return integral(n)
	case float32:
		return integral(float64(n))
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return integral(f)
	}
	return 0, fmt.Errorf("%T is not an integer", v)
}

func integral(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func castFloat(v any) (any, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return nil, fmt.Errorf("%T is not a number", v)
}

func castString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool, float64, int, int64:
		return fmt.Sprint(s), nil
	}
	return nil, fmt.Errorf("%T is not a string", v)
}

// Structured values may arrive JSON-encoded in a string.
func castJSON[T map[string]any | []any](v any) (any, error) {
	if native, ok := v.(T); ok {
		return native, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%T is not structured", v)
	}
	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
