package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docgate/internal/domain/data"
	"docgate/internal/domain/query"
)

var tracer = otel.Tracer("docgate/mongo")

// Store is the MongoDB document store.
type Store struct {
	db *mongo.Database
}

// NewStore creates a Store over db.
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Collection(docType string) data.Query {
	return &documentQuery{coll: s.db.Collection(docType), docType: docType}
}

func (s *Store) Get(ctx context.Context, docType, id string) (data.Document, error) {
	ctx, span := tracer.Start(ctx, "mongo.Get", trace.WithAttributes(attribute.String("doc.type", docType)))
	defer span.End()

	var raw bson.M
	err := s.db.Collection(docType).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", docType, id, data.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", docType, id, translate(err))
	}
	return normalizeDocument(raw), nil
}

func (s *Store) Create(ctx context.Context, docType, id string, doc data.Document) error {
	ctx, span := tracer.Start(ctx, "mongo.Create", trace.WithAttributes(attribute.String("doc.type", docType)))
	defer span.End()

	if _, err := s.db.Collection(docType).InsertOne(ctx, encodeDocument(id, doc)); err != nil {
		return fmt.Errorf("insert %s/%s: %w", docType, id, translate(err))
	}
	return nil
}

// Update merges the top-level fields of doc into the stored document.
func (s *Store) Update(ctx context.Context, docType, id string, doc data.Document) error {
	ctx, span := tracer.Start(ctx, "mongo.Update", trace.WithAttributes(attribute.String("doc.type", docType)))
	defer span.End()

	set := encodeDocument(id, doc)
	delete(set, "_id")
	res, err := s.db.Collection(docType).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", docType, id, translate(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", docType, id, data.ErrNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

func encodeDocument(id string, doc data.Document) bson.M {
	out := make(bson.M, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	out["uuid"] = id
	out["_id"] = id
	return out
}

// normalizeDocument converts a decoded BSON document into the plain JSON
// shape the rest of the service works with. Integers become json.Number,
// like documents decoded from JSON.
func normalizeDocument(raw bson.M) data.Document {
	delete(raw, "_id")
	doc, _ := normalize(raw).(map[string]any)
	return doc
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case map[string]any:
		return normalize(bson.M(t))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case []any:
		return normalize(bson.A(t))
	case int32:
		return json.Number(strconv.FormatInt(int64(t), 10))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case primitive.Decimal128:
		return json.Number(t.String())
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Binary:
		return t.Data
	}
	return v
}

// documentQuery is an immutable query over one document collection.
// Invalid comparisons are remembered and reported by All.
type documentQuery struct {
	coll    *mongo.Collection
	docType string
	filter  bson.D
	limit   int64
	err     error
}

func (q *documentQuery) with(clause bson.E, err error) *documentQuery {
	next := *q
	next.filter = append(append(bson.D(nil), q.filter...), clause)
	if q.err == nil {
		next.err = err
	}
	return &next
}

func (q *documentQuery) Where(field string, op query.Operator, value query.Value) data.Query {
	clause, err := Predicate(field, op, value)
	return q.with(clause, err)
}

func (q *documentQuery) IDIn(ids []string) data.Query {
	return q.with(bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}, nil)
}

func (q *documentQuery) Limit(n int) data.Query {
	next := *q
	next.limit = int64(n)
	return &next
}

// Filter returns the filter document All sends.
func (q *documentQuery) Filter() (bson.D, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.filter) == 0 {
		return bson.D{}, nil
	}
	and := make(bson.A, len(q.filter))
	for i, clause := range q.filter {
		and[i] = bson.D{clause}
	}
	return bson.D{{Key: "$and", Value: and}}, nil
}

func (q *documentQuery) All(ctx context.Context) ([]data.Document, error) {
	filter, err := q.Filter()
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "mongo.Query", trace.WithAttributes(attribute.String("doc.type", q.docType)))
	defer span.End()

	opts := options.Find()
	if q.limit > 0 {
		opts.SetLimit(q.limit)
	}
	cur, err := q.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.docType, translate(err))
	}
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("read %s: %w", q.docType, translate(err))
	}
	docs := make([]data.Document, len(raws))
	for i, raw := range raws {
		docs[i] = normalizeDocument(raw)
	}
	return docs, nil
}

var rangeOperators = map[query.Operator]string{
	query.OpLessThan:           "$lt",
	query.OpLessThanOrEqual:    "$lte",
	query.OpGreaterThan:        "$gt",
	query.OpGreaterThanOrEqual: "$gte",
}

// Predicate translates one comparison into a filter clause. MongoDB only
// orders values within one type bracket, so range comparisons never match
// values of another type. Array operators require the field to hold an
// array; the other operators never match an array field, where MongoDB
// would otherwise compare element by element.
func Predicate(field string, op query.Operator, value query.Value) (bson.E, error) {
	switch op {
	case query.OpEqual:
		return bson.E{Key: field, Value: scalarOnly("$eq", operand(value))}, nil
	case query.OpLessThan, query.OpLessThanOrEqual, query.OpGreaterThan, query.OpGreaterThanOrEqual:
		return bson.E{Key: field, Value: scalarOnly(rangeOperators[op], operand(value))}, nil
	case query.OpArrayContains:
		return bson.E{Key: field, Value: bson.D{
			{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: operand(value)}}},
		}}, nil
	case query.OpIn:
		return bson.E{Key: field, Value: scalarOnly("$in", operands(value))}, nil
	case query.OpArrayContainsAny:
		return bson.E{Key: field, Value: bson.D{
			{Key: "$elemMatch", Value: bson.D{{Key: "$in", Value: operands(value)}}},
		}}, nil
	}
	return bson.E{}, fmt.Errorf("%w: operator %q", query.ErrInvalid, op)
}

func scalarOnly(op string, v any) bson.D {
	return bson.D{
		{Key: op, Value: v},
		{Key: "$not", Value: bson.D{{Key: "$type", Value: "array"}}},
	}
}

// operand converts a typed value into the BSON value stored documents hold.
func operand(v query.Value) any {
	switch v.Kind() {
	case query.KindInteger:
		if i, ok := v.Int64(); ok {
			return i
		}
	case query.KindArray:
		return operands(v)
	}
	return v.Native()
}

func operands(v query.Value) bson.A {
	items := v.Items()
	out := make(bson.A, len(items))
	for i, item := range items {
		out[i] = operand(item)
	}
	return out
}
