// Package id generates and checks document identifiers.
// Documents are keyed by the string form of a random (v4) UUID, the format
// mobile clients already produce offline.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh document identifier.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s can be used as a document key: non-empty, no path
// separators, no surrounding whitespace.
func Valid(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}
