package data

import (
	"io"
)

type flusher interface {
	Flush()
}

// ArrayWriter writes a JSON array of already encoded records incrementally.
//
// The last record of every batch is held back as pending until the next
// non-empty batch or Close, so a separator is only ever written between two
// records. Nothing is written before the first record or Close, which lets
// callers still report an error instead of a truncated array.
type ArrayWriter struct {
	w       io.Writer
	pending []byte
	started bool
	closed  bool
	count   int
}

// NewArrayWriter returns an ArrayWriter over w. When w has a Flush method it
// is called after every batch.
func NewArrayWriter(w io.Writer) *ArrayWriter {
	return &ArrayWriter{w: w}
}

// Started reports whether any byte has been written.
func (a *ArrayWriter) Started() bool {
	return a.started
}

// Count returns the number of records written, including the pending one.
func (a *ArrayWriter) Count() int {
	return a.count
}

// Batch writes records. An empty batch is a no-op.
func (a *ArrayWriter) Batch(records [][]byte) error {
	if len(records) == 0 {
		return nil
	}
	if err := a.open(); err != nil {
		return err
	}
	if a.pending != nil {
		if err := a.write(a.pending, comma); err != nil {
			return err
		}
	}
	last := len(records) - 1
	for _, rec := range records[:last] {
		if err := a.write(rec, comma); err != nil {
			return err
		}
	}
	a.pending = records[last]
	a.count += len(records)
	a.flush()
	return nil
}

// Close writes the pending record and terminates the array. Calling Close
// more than once is a no-op.
func (a *ArrayWriter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.open(); err != nil {
		return err
	}
	if a.pending != nil {
		if err := a.write(a.pending, nil); err != nil {
			return err
		}
		a.pending = nil
	}
	if _, err := a.w.Write(closeBracket); err != nil {
		return err
	}
	a.flush()
	return nil
}

var (
	openBracket  = []byte("[")
	closeBracket = []byte("]")
	comma        = []byte(",")
)

func (a *ArrayWriter) open() error {
	if a.started {
		return nil
	}
	a.started = true
	_, err := a.w.Write(openBracket)
	return err
}

func (a *ArrayWriter) write(rec, sep []byte) error {
	if _, err := a.w.Write(rec); err != nil {
		return err
	}
	if sep != nil {
		if _, err := a.w.Write(sep); err != nil {
			return err
		}
	}
	return nil
}

func (a *ArrayWriter) flush() {
	if f, ok := a.w.(flusher); ok {
		f.Flush()
	}
}
