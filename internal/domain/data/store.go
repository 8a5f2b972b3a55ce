// Package data serves document reads, structured queries and writes on
// behalf of a verified caller. Every result is restricted to the caller's
// eligibility set and passed through the schema read transform.
package data

import (
	"context"
	"errors"
	"time"

	"docgate/internal/domain/query"
)

// Document is one stored record, keyed by its "uuid" field.
type Document = query.Document

var (
	// ErrNotFound is returned by Store.Get and Store.Update for a missing id.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Store.Create for a taken id.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrPrecondition is returned when the backend refuses to run a query
	// shape, for instance a filter over a field it has no index for.
	ErrPrecondition = errors.New("query precondition failed")
)

// Query is a backend query under construction. Every method returns a new
// Query; the receiver is left unchanged.
type Query interface {
	// Where narrows the query by one comparison. Query satisfies
	// query.Refiner so filter trees fold into it with query.Apply.
	Where(field string, op query.Operator, value query.Value) Query

	// IDIn restricts the query to documents whose uuid is in ids.
	IDIn(ids []string) Query

	// Limit caps the number of returned documents.
	Limit(n int) Query

	// All runs the query. The order of the result is undefined.
	All(ctx context.Context) ([]Document, error)
}

// Store is the document backend.
type Store interface {
	// Collection starts a query over every document of docType.
	Collection(docType string) Query

	Get(ctx context.Context, docType, id string) (Document, error)

	// Create inserts doc under id or fails with ErrAlreadyExists.
	Create(ctx context.Context, docType, id string, doc Document) error

	// Update merges doc into the stored document id.
	Update(ctx context.Context, docType, id string, doc Document) error

	Ping(ctx context.Context) error
}

// Metrics receives executor and write path observations.
type Metrics interface {
	BatchFetched(path string, d time.Duration)
	DocumentsEmitted(path string, n int)
	ProbeRejected()
	DocumentWritten(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) BatchFetched(string, time.Duration) {}
func (nopMetrics) DocumentsEmitted(string, int)       {}
func (nopMetrics) ProbeRejected()                     {}
func (nopMetrics) DocumentWritten(string)             {}
