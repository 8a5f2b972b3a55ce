package query

// Cursor is a positional bound over the ordered result. Values[i] matches
// the i-th order term; Values may cover a prefix of the terms. Before marks
// the bound as exclusive: the matching record itself is dropped.
type Cursor struct {
	Values []Value
	Before bool
}

// matches reports whether doc equals the cursor on every supplied value.
func (c *Cursor) matches(terms []OrderTerm, doc Document) bool {
	for i, v := range c.Values {
		field, _ := Lookup(doc, terms[i].Field)
		if !Equal(field, v.Native()) {
			return false
		}
	}
	return true
}

// cutoff is the index of the first record matching the cursor, or -1.
func (c *Cursor) cutoff(terms []OrderTerm, docs []Document) int {
	for i, doc := range docs {
		if c.matches(terms, doc) {
			return i
		}
	}
	return -1
}

// PruneStart drops records before the start cursor. An exclusive cursor also
// drops the matched record. When nothing matches the result is empty.
func PruneStart(c *Cursor, terms []OrderTerm, docs []Document) []Document {
	if c == nil {
		return docs
	}
	cut := c.cutoff(terms, docs)
	if cut < 0 {
		return docs[:0]
	}
	offset := 0
	if c.Before {
		offset = 1
	}
	return docs[max(0, cut+offset):]
}

// PruneEnd drops records after the end cursor. An exclusive cursor also
// drops the matched record. When nothing matches docs is returned unchanged.
func PruneEnd(c *Cursor, terms []OrderTerm, docs []Document) []Document {
	if c == nil {
		return docs
	}
	cut := c.cutoff(terms, docs)
	if cut < 0 {
		return docs
	}
	offset := 0
	if c.Before {
		offset = -1
	}
	return docs[:max(0, cut+offset+1)]
}
