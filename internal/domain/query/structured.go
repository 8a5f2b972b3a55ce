// Package query models the structured query a client sends with a read:
// a filter tree, order terms and cursor bounds. Queries are parsed from
// untrusted JSON, validated eagerly and then treated as immutable.
//
// Filters are translated to backend queries through Apply; ordering and
// cursor pruning run in memory over materialized records.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StructuredQuery is a validated client query. The zero value matches
// everything in undefined order.
type StructuredQuery struct {
	Filter  Node
	OrderBy []OrderTerm
	StartAt *Cursor
	EndAt   *Cursor
}

// IsOrdered reports whether the result needs a global sort.
func (q *StructuredQuery) IsOrdered() bool {
	return q != nil && len(q.OrderBy) > 0
}

// Order sorts docs by the order terms and applies both cursors.
func (q *StructuredQuery) Order(docs []Document) []Document {
	if !q.IsOrdered() {
		return docs
	}
	docs = Sort(q.OrderBy, docs)
	docs = PruneStart(q.StartAt, q.OrderBy, docs)
	return PruneEnd(q.EndAt, q.OrderBy, docs)
}

// Validate checks cross-field rules. Parse calls it; callers constructing
// queries in code should too.
func (q *StructuredQuery) Validate() error {
	if q == nil {
		return nil
	}
	for _, c := range Comparisons(q.Filter) {
		if err := ValidateFieldPath(c.Field); err != nil {
			return err
		}
		if !c.Value.IsValid() {
			return fmt.Errorf("%w: field %q has no value", ErrInvalid, c.Field)
		}
	}
	if n := countMembership(q.Filter); n > 1 {
		return fmt.Errorf("%w: at most one in/array-contains-any clause is allowed, got %d", ErrInvalid, n)
	}
	for i, t := range q.OrderBy {
		if err := ValidateFieldPath(t.Field); err != nil {
			return fmt.Errorf("orderBy[%d]: %w", i, err)
		}
		if t.Direction != Ascending && t.Direction != Descending {
			return fmt.Errorf("%w: orderBy[%d] has direction %q", ErrInvalid, i, t.Direction)
		}
	}
	if err := q.validateCursor("startAt", q.StartAt); err != nil {
		return err
	}
	return q.validateCursor("endAt", q.EndAt)
}

func (q *StructuredQuery) validateCursor(name string, c *Cursor) error {
	if c == nil {
		return nil
	}
	if len(q.OrderBy) == 0 {
		return fmt.Errorf("%w: %s requires orderBy", ErrInvalid, name)
	}
	if len(c.Values) == 0 {
		return fmt.Errorf("%w: %s has no values", ErrInvalid, name)
	}
	if len(c.Values) > len(q.OrderBy) {
		return fmt.Errorf("%w: %s has %d values but orderBy has %d terms",
			ErrInvalid, name, len(c.Values), len(q.OrderBy))
	}
	for i, v := range c.Values {
		if !v.IsValid() || v.Kind() == KindArray {
			return fmt.Errorf("%w: %s.values[%d] must be a scalar", ErrInvalid, name, i)
		}
	}
	return nil
}

func countMembership(n Node) int {
	count := 0
	for _, c := range Comparisons(n) {
		if c.Op.IsMembership() {
			count++
		}
	}
	return count
}

// --- wire format ---

type orderJSON struct {
	Field     fieldReference `json:"field"`
	Direction string         `json:"direction,omitempty"`
}

type cursorJSON struct {
	Values []json.RawMessage `json:"values"`
	Before bool              `json:"before"`
}

type whereJSON struct {
	Filter json.RawMessage `json:"filter"`
}

type structuredJSON struct {
	Where   *whereJSON      `json:"where"`
	OrderBy []orderJSON     `json:"orderBy"`
	StartAt *cursorJSON     `json:"startAt"`
	EndAt   *cursorJSON     `json:"endAt"`
	Limit   json.RawMessage `json:"limit"`
	Offset  json.RawMessage `json:"offset"`
}

// Parse decodes and validates a structured query. An empty or null body
// yields nil, the match-everything query.
func Parse(data []byte) (*StructuredQuery, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var raw structuredJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !isJSONNull(raw.Limit) || !isJSONNull(raw.Offset) {
		return nil, fmt.Errorf("limit/offset: %w, use startAt/endAt cursors", ErrNotImplemented)
	}

	q := &StructuredQuery{}
	if raw.Where != nil && !isJSONNull(raw.Where.Filter) {
		f, err := ParseFilter(raw.Where.Filter)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		q.Filter = f
	}
	for i, o := range raw.OrderBy {
		dir, err := ParseDirection(o.Direction)
		if err != nil {
			return nil, fmt.Errorf("orderBy[%d]: %w", i, err)
		}
		q.OrderBy = append(q.OrderBy, OrderTerm{Field: o.Field.FieldPath, Direction: dir})
	}

	var err error
	if q.StartAt, err = parseCursor("startAt", raw.StartAt); err != nil {
		return nil, err
	}
	if q.EndAt, err = parseCursor("endAt", raw.EndAt); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func parseCursor(name string, c *cursorJSON) (*Cursor, error) {
	if c == nil {
		return nil, nil
	}
	out := &Cursor{Before: c.Before, Values: make([]Value, 0, len(c.Values))}
	for i, raw := range c.Values {
		v, err := parseValue(raw, false)
		if err != nil {
			return nil, fmt.Errorf("%s.values[%d]: %w", name, i, err)
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// MarshalJSON writes the query in the same wire form Parse reads.
func (q *StructuredQuery) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if q.Filter != nil {
		f, err := toWire(q.Filter)
		if err != nil {
			return nil, err
		}
		out["where"] = map[string]any{"filter": f}
	}
	if len(q.OrderBy) > 0 {
		terms := make([]orderJSON, len(q.OrderBy))
		for i, t := range q.OrderBy {
			terms[i] = orderJSON{Field: fieldReference{FieldPath: t.Field}, Direction: string(t.Direction)}
		}
		out["orderBy"] = terms
	}
	if q.StartAt != nil {
		out["startAt"] = cursorWire(q.StartAt)
	}
	if q.EndAt != nil {
		out["endAt"] = cursorWire(q.EndAt)
	}
	return json.Marshal(out)
}

func cursorWire(c *Cursor) map[string]any {
	return map[string]any{"values": c.Values, "before": c.Before}
}
