package query

import (
	"fmt"
	"slices"
	"strings"
)

// Direction of one order term.
type Direction string

const (
	Ascending  Direction = "ASCENDING"
	Descending Direction = "DESCENDING"
)

// ParseDirection accepts ASCENDING/DESCENDING (any case, ASC/DESC too).
// An empty string means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "", "ASCENDING", "ASC":
		return Ascending, nil
	case "DESCENDING", "DESC":
		return Descending, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalid, s)
}

// OrderTerm is one sort key.
type OrderTerm struct {
	Field     string
	Direction Direction
}

// Document is the shape sort and prune operate on.
type Document = map[string]any

func (t OrderTerm) compare(a, b Document) int {
	va, _ := Lookup(a, t.Field)
	vb, _ := Lookup(b, t.Field)
	c := Compare(va, vb)
	if t.Direction == Descending {
		return -c
	}
	return c
}

// Sort orders docs lexicographically over terms, in place, and returns it.
//
// Terms are applied least significant first with a stable sort per pass, so
// records that tie on every key keep their incoming relative order and a
// descending pass reverses the comparator rather than the records.
func Sort(terms []OrderTerm, docs []Document) []Document {
	for i := len(terms) - 1; i >= 0; i-- {
		term := terms[i]
		slices.SortStableFunc(docs, term.compare)
	}
	return docs
}
