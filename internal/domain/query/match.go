package query

// Matches evaluates the filter tree against doc in memory with the
// semantics document backends give the operators: range comparisons only
// match values of the same kind, missing fields never match. A nil node
// matches every document.
func Matches(n Node, doc Document) bool {
	switch n := n.(type) {
	case *Comparison:
		return n.Matches(doc)
	case *Composite:
		for _, child := range n.Filters {
			if !Matches(child, doc) {
				return false
			}
		}
	}
	return true
}

// Matches evaluates the comparison against doc.
func (c *Comparison) Matches(doc Document) bool {
	got, ok := Lookup(doc, c.Field)
	if !ok {
		return false
	}
	want := c.Value.Native()

	switch c.Op {
	case OpEqual:
		return Equal(got, want)
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		if rank(got) != rank(want) {
			return false
		}
		cmp := Compare(got, want)
		switch c.Op {
		case OpLessThan:
			return cmp < 0
		case OpLessThanOrEqual:
			return cmp <= 0
		case OpGreaterThan:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpArrayContains:
		return containsAny(got, []any{want})
	case OpIn:
		for _, item := range c.Value.Items() {
			if Equal(got, item.Native()) {
				return true
			}
		}
		return false
	case OpArrayContainsAny:
		items := c.Value.Items()
		wants := make([]any, len(items))
		for i, item := range items {
			wants[i] = item.Native()
		}
		return containsAny(got, wants)
	}
	return false
}

func containsAny(got any, wants []any) bool {
	arr, ok := got.([]any)
	if !ok {
		return false
	}
	for _, elem := range arr {
		for _, want := range wants {
			if Equal(elem, want) {
				return true
			}
		}
	}
	return false
}
