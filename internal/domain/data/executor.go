package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc/stream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docgate/internal/core/apperror"
	"docgate/internal/domain/query"
	"docgate/internal/domain/schema"
	"docgate/pkg/logger"
)

const (
	// DefaultBatchSize is the largest membership list most document
	// backends accept in one filter.
	DefaultBatchSize = 10

	// DefaultParallelism bounds concurrent batch fetches per request.
	DefaultParallelism = 4

	// probeID never names a document: identifiers may not contain '/'.
	probeID = "/"

	pathOrdered   = "ordered"
	pathUnordered = "unordered"
)

// ExecutorConfig configures an Executor. Zero fields take defaults.
type ExecutorConfig struct {
	BatchSize   int
	Parallelism int
	Metrics     Metrics
}

// Executor runs a structured query over an eligibility set in membership
// batches and writes the result as a JSON array.
type Executor struct {
	store       Store
	batchSize   int
	parallelism int
	metrics     Metrics
	tracer      trace.Tracer
}

// NewExecutor creates an Executor over store.
func NewExecutor(store Store, cfg ExecutorConfig) *Executor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	return &Executor{
		store:       store,
		batchSize:   cfg.BatchSize,
		parallelism: cfg.Parallelism,
		metrics:     cfg.Metrics,
		tracer:      otel.Tracer("docgate/data"),
	}
}

// Run writes every document of docType that is in ids and matches q to w,
// each passed through transform.
//
// Without order terms, records are written as batches complete, in batch
// order. With order terms, all matches are collected, sorted and pruned by
// the cursors, then written at once.
//
// Errors returned before anything was written leave w untouched.
func (e *Executor) Run(ctx context.Context, docType string, ids []string, q *query.StructuredQuery,
	transform schema.Transform, w io.Writer) (err error) {
	path := pathUnordered
	if q.IsOrdered() {
		path = pathOrdered
	}

	ctx, span := e.tracer.Start(ctx, "data.Query", trace.WithAttributes(
		attribute.String("doc.type", docType),
		attribute.String("query.path", path),
		attribute.Int("eligibility.size", len(ids)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var filter query.Node
	if q != nil {
		filter = q.Filter
	}
	if err := e.probe(ctx, docType, filter); err != nil {
		return err
	}

	out := NewArrayWriter(w)
	batches := Partition(ids, e.batchSize)
	logger.Debug(ctx, "executing query",
		"type", docType, "path", path, "ids", len(ids), "batches", len(batches))

	if q.IsOrdered() {
		err = e.runOrdered(ctx, docType, batches, q, transform, out)
	} else {
		err = e.runUnordered(ctx, docType, batches, filter, transform, out)
	}
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	e.metrics.DocumentsEmitted(path, out.Count())
	return nil
}

// probe runs the filter against an impossible membership value so a
// backend precondition failure surfaces before any batch runs.
func (e *Executor) probe(ctx context.Context, docType string, filter query.Node) error {
	if filter == nil {
		return nil
	}
	ctx, span := e.tracer.Start(ctx, "data.probe")
	defer span.End()

	q := query.Apply(filter, e.store.Collection(docType))
	_, err := q.IDIn([]string{probeID}).Limit(1).All(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPrecondition):
		e.metrics.ProbeRejected()
		return apperror.NewPrecondition(err.Error()).WithCause(err)
	default:
		return apperror.NewDatabase(err)
	}
}

// each fetches every batch concurrently and calls fn with the results in
// batch order, one call at a time. Remaining fetches are cancelled after the
// first error.
func (e *Executor) each(ctx context.Context, docType string, batches [][]string, filter query.Node,
	path string, fn func(docs []Document) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var firstErr error
	s := stream.New().WithMaxGoroutines(e.parallelism)
	for i, batch := range batches {
		s.Go(func() stream.Callback {
			docs, err := e.fetch(ctx, docType, i, batch, filter, path)
			return func() {
				if firstErr != nil {
					return
				}
				if err == nil {
					err = fn(docs)
				}
				if err != nil {
					firstErr = err
					cancel()
				}
			}
		})
	}
	s.Wait()
	return firstErr
}

func (e *Executor) fetch(ctx context.Context, docType string, index int, ids []string,
	filter query.Node, path string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "data.batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(ids)),
	))
	defer span.End()

	start := time.Now()
	q := query.Apply(filter, e.store.Collection(docType).IDIn(ids))
	docs, err := q.All(ctx)
	e.metrics.BatchFetched(path, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Error(ctx, "batch fetch failed", "type", docType, "batch", index, "error", err)
		if errors.Is(err, ErrPrecondition) {
			return nil, apperror.NewPrecondition(err.Error()).WithCause(err)
		}
		return nil, apperror.NewDatabase(err)
	}
	span.SetAttributes(attribute.Int("batch.documents", len(docs)))
	return docs, nil
}

func (e *Executor) runUnordered(ctx context.Context, docType string, batches [][]string, filter query.Node,
	transform schema.Transform, out *ArrayWriter) error {
	return e.each(ctx, docType, batches, filter, pathUnordered, func(docs []Document) error {
		records, err := encode(docs, transform)
		if err != nil {
			return err
		}
		return out.Batch(records)
	})
}

func (e *Executor) runOrdered(ctx context.Context, docType string, batches [][]string, q *query.StructuredQuery,
	transform schema.Transform, out *ArrayWriter) error {
	var all []Document
	err := e.each(ctx, docType, batches, q.Filter, pathOrdered, func(docs []Document) error {
		all = append(all, docs...)
		return nil
	})
	if err != nil {
		return err
	}
	records, err := encode(q.Order(all), transform)
	if err != nil {
		return err
	}
	return out.Batch(records)
}

func encode(docs []Document, transform schema.Transform) ([][]byte, error) {
	records := make([][]byte, 0, len(docs))
	for _, doc := range docs {
		out := doc
		if transform != nil {
			var err error
			if out, err = transform(doc); err != nil {
				return nil, fmt.Errorf("transform %v: %w", doc["uuid"], err)
			}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode %v: %w", doc["uuid"], err)
		}
		records = append(records, b)
	}
	return records, nil
}

// Partition splits ids into consecutive batches of at most size, dropping
// repeated identifiers.
func Partition(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	seen := make(map[string]struct{}, len(ids))
	var batches [][]string
	var cur []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cur = append(cur, id)
		if len(cur) == size {
			batches = append(batches, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
