package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a field comparison operator.
type Operator string

const (
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpEqual              Operator = "=="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpArrayContains      Operator = "array-contains"
	OpIn                 Operator = "in"
	OpArrayContainsAny   Operator = "array-contains-any"
)

// MaxMembershipValues bounds the operand list of in / array-contains-any.
const MaxMembershipValues = 10

var operatorNames = map[string]Operator{
	"LESS_THAN":             OpLessThan,
	"LESS_THAN_OR_EQUAL":    OpLessThanOrEqual,
	"EQUAL":                 OpEqual,
	"GREATER_THAN":          OpGreaterThan,
	"GREATER_THAN_OR_EQUAL": OpGreaterThanOrEqual,
	"ARRAY_CONTAINS":        OpArrayContains,
	"IN":                    OpIn,
	"ARRAY_CONTAINS_ANY":    OpArrayContainsAny,
}

// ParseOperator accepts the symbolic form ("<", "array-contains") or the
// upper-case wire name ("LESS_THAN", "ARRAY_CONTAINS").
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case OpLessThan, OpLessThanOrEqual, OpEqual, OpGreaterThan, OpGreaterThanOrEqual,
		OpArrayContains, OpIn, OpArrayContainsAny:
		return op, nil
	}
	if op, ok := operatorNames[s]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrInvalid, s)
}

// IsMembership reports whether the operand is a list of candidates.
func (o Operator) IsMembership() bool {
	return o == OpIn || o == OpArrayContainsAny
}

// IsRange reports whether o is an ordering comparison.
func (o Operator) IsRange() bool {
	switch o {
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		return true
	}
	return false
}

// Node is an element of a filter tree: *Comparison or *Composite.
type Node interface {
	node()
}

// Comparison restricts one field with one operator.
type Comparison struct {
	Field string
	Op    Operator
	Value Value
}

// Composite is the conjunction of its filters. There is no OR.
type Composite struct {
	Filters []Node
}

func (*Comparison) node() {}
func (*Composite) node()  {}

// Refiner is a backend-native query that can be narrowed by one comparison
// at a time. Each call returns the refined query; implementations may be
// immutable builders.
type Refiner[Q any] interface {
	Where(field string, op Operator, value Value) Q
}

// Apply walks the filter tree depth-first and folds every comparison into q
// in document order. A nil node leaves q unchanged.
func Apply[Q Refiner[Q]](n Node, q Q) Q {
	switch n := n.(type) {
	case *Comparison:
		return q.Where(n.Field, n.Op, n.Value)
	case *Composite:
		for _, child := range n.Filters {
			q = Apply(child, q)
		}
	}
	return q
}

// Comparisons returns every comparison of the tree in Apply order.
func Comparisons(n Node) []*Comparison {
	var out []*Comparison
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Comparison:
			out = append(out, n)
		case *Composite:
			for _, child := range n.Filters {
				walk(child)
			}
		}
	}
	walk(n)
	return out
}

// ValidateFieldPath rejects paths a backend could misread: empty segments
// and operator-like segments starting with '$'.
func ValidateFieldPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty field path", ErrInvalid)
	}
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return fmt.Errorf("%w: field path %q has an empty segment", ErrInvalid, path)
		}
		if strings.HasPrefix(segment, "$") {
			return fmt.Errorf("%w: field path %q may not start a segment with '$'", ErrInvalid, path)
		}
		if strings.ContainsAny(segment, "\x00") {
			return fmt.Errorf("%w: field path %q contains a NUL byte", ErrInvalid, path)
		}
	}
	return nil
}

// --- wire format ---

type fieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type fieldFilterJSON struct {
	Field fieldReference  `json:"field"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
}

type compositeFilterJSON struct {
	Op      string            `json:"op,omitempty"`
	Filters []json.RawMessage `json:"filters"`
}

type filterJSON struct {
	FieldFilter     *fieldFilterJSON     `json:"fieldFilter,omitempty"`
	CompositeFilter *compositeFilterJSON `json:"compositeFilter,omitempty"`
	UnaryFilter     json.RawMessage      `json:"unaryFilter,omitempty"`
}

// ParseFilter decodes and validates one filter node.
func ParseFilter(data []byte) (Node, error) {
	var f filterJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: filter: %v", ErrInvalid, err)
	}

	set := 0
	for _, present := range []bool{f.FieldFilter != nil, f.CompositeFilter != nil, len(f.UnaryFilter) > 0 && !isJSONNull(f.UnaryFilter)} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: filter must set exactly one of fieldFilter or compositeFilter", ErrInvalid)
	}

	switch {
	case f.FieldFilter != nil:
		return parseComparison(f.FieldFilter)
	case f.CompositeFilter != nil:
		return parseComposite(f.CompositeFilter)
	default:
		return nil, fmt.Errorf("%w: unaryFilter is not supported", ErrInvalid)
	}
}

func parseComparison(f *fieldFilterJSON) (*Comparison, error) {
	if err := ValidateFieldPath(f.Field.FieldPath); err != nil {
		return nil, err
	}
	op, err := ParseOperator(f.Op)
	if err != nil {
		return nil, err
	}
	if len(f.Value) == 0 || isJSONNull(f.Value) {
		return nil, fmt.Errorf("%w: field %q has no value", ErrInvalid, f.Field.FieldPath)
	}
	value, err := parseValue(f.Value, true)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Field.FieldPath, err)
	}

	if value.Kind() == KindArray {
		if !op.IsMembership() {
			return nil, fmt.Errorf("%w: operator %q does not take an arrayValue", ErrInvalid, op)
		}
		if n := len(value.Items()); n == 0 || n > MaxMembershipValues {
			return nil, fmt.Errorf("%w: operator %q takes 1 to %d values, got %d",
				ErrInvalid, op, MaxMembershipValues, n)
		}
	} else if op.IsMembership() {
		value = Array(value)
	}

	return &Comparison{Field: f.Field.FieldPath, Op: op, Value: value}, nil
}

func parseComposite(f *compositeFilterJSON) (*Composite, error) {
	if f.Op != "" && f.Op != "AND" {
		return nil, fmt.Errorf("%w: composite operator %q is not supported, only AND", ErrInvalid, f.Op)
	}
	if len(f.Filters) == 0 {
		return nil, fmt.Errorf("%w: compositeFilter has no filters", ErrInvalid)
	}
	out := &Composite{Filters: make([]Node, 0, len(f.Filters))}
	for i, raw := range f.Filters {
		child, err := ParseFilter(raw)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		out.Filters = append(out.Filters, child)
	}
	return out, nil
}

// MarshalFilter encodes a filter tree in wire form.
func MarshalFilter(n Node) ([]byte, error) {
	w, err := toWire(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(n Node) (map[string]any, error) {
	switch n := n.(type) {
	case *Comparison:
		return map[string]any{"fieldFilter": map[string]any{
			"field": fieldReference{FieldPath: n.Field},
			"op":    string(n.Op),
			"value": n.Value,
		}}, nil
	case *Composite:
		children := make([]map[string]any, 0, len(n.Filters))
		for _, child := range n.Filters {
			w, err := toWire(child)
			if err != nil {
				return nil, err
			}
			children = append(children, w)
		}
		return map[string]any{"compositeFilter": map[string]any{
			"op":      "AND",
			"filters": children,
		}}, nil
	}
	return nil, fmt.Errorf("%w: unknown filter node %T", ErrInvalid, n)
}
