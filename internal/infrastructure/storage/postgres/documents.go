package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docgate/internal/domain/data"
	"docgate/internal/domain/query"
)

var tracer = otel.Tracer("docgate/postgres")

// Querier is the subset of pgxpool.Pool the stores use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pgxscan.Querier
}

// Store is the JSONB document store.
type Store struct {
	db Querier
}

// NewStore creates a Store over db.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (s *Store) Collection(docType string) data.Query {
	return &documentQuery{
		db: s.db,
		sb: builder().Select("data").From("documents").Where(squirrel.Eq{"doc_type": docType}),
	}
}

type documentRow struct {
	Data []byte `db:"data"`
}

func (s *Store) Get(ctx context.Context, docType, id string) (data.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.Get", trace.WithAttributes(attribute.String("doc.type", docType)))
	defer span.End()

	var row documentRow
	err := pgxscan.Get(ctx, s.db, &row,
		"SELECT data FROM documents WHERE doc_type = $1 AND uuid = $2", docType, id)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("%s/%s: %w", docType, id, data.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", docType, id, translate(err))
	}
	return decodeDocument(row.Data)
}

func (s *Store) Create(ctx context.Context, docType, id string, doc data.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.Create", trace.WithAttributes(attribute.String("doc.type", docType)))
	defer span.End()

	raw, err := encodeDocument(id, doc)
	if err != nil {
		return err
	}
	sql, args, err := builder().
		Insert("documents").
		Columns("doc_type", "uuid", "data").
		Values(docType, id, squirrel.Expr("?::text::jsonb", raw)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s/%s: %w", docType, id, translate(err))
	}
	return nil
}

// Update merges the top-level fields of doc into the stored document.
func (s *Store) Update(ctx context.Context, docType, id string, doc data.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.Update", trace.WithAttributes(attribute.String("doc.type", docType)))
	defer span.End()

	raw, err := encodeDocument(id, doc)
	if err != nil {
		return err
	}
	sql, args, err := builder().
		Update("documents").
		Set("data", squirrel.Expr("data || ?::text::jsonb", raw)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"doc_type": docType, "uuid": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", docType, id, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", docType, id, data.ErrNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

func encodeDocument(id string, doc data.Document) (string, error) {
	withID := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		withID[k] = v
	}
	withID["uuid"] = id
	raw, err := json.Marshal(withID)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", id, err)
	}
	return string(raw), nil
}

func decodeDocument(raw []byte) (data.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc data.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// documentQuery is an immutable query over the documents table. Invalid
// comparisons are remembered and reported by All.
type documentQuery struct {
	db  Querier
	sb  squirrel.SelectBuilder
	err error
}

func (q *documentQuery) with(sb squirrel.SelectBuilder, err error) *documentQuery {
	if q.err != nil {
		err = q.err
	}
	return &documentQuery{db: q.db, sb: sb, err: err}
}

func (q *documentQuery) Where(field string, op query.Operator, value query.Value) data.Query {
	pred, err := Predicate(field, op, value)
	if err != nil {
		return q.with(q.sb, err)
	}
	return q.with(q.sb.Where(pred), nil)
}

func (q *documentQuery) IDIn(ids []string) data.Query {
	return q.with(q.sb.Where(squirrel.Eq{"uuid": ids}), nil)
}

func (q *documentQuery) Limit(n int) data.Query {
	return q.with(q.sb.Limit(uint64(n)), nil)
}

// ToSql returns the statement All runs.
func (q *documentQuery) ToSql() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	return q.sb.ToSql()
}

func (q *documentQuery) All(ctx context.Context) ([]data.Document, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "postgres.Query", trace.WithAttributes(attribute.String("db.statement", sql)))
	defer span.End()

	var rows []documentRow
	if err := pgxscan.Select(ctx, q.db, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query documents: %w", translate(err))
	}
	docs := make([]data.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeDocument(row.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Predicate translates one comparison into a JSONB predicate over the data
// column. Range comparisons only match values of the operand's JSON type.
func Predicate(field string, op query.Operator, value query.Value) (squirrel.Sqlizer, error) {
	path := strings.Split(field, ".")

	switch op {
	case query.OpEqual:
		operand, err := value.DocumentJSON()
		if err != nil {
			return nil, err
		}
		return squirrel.Expr("data #> ?::text[] = ?::text::jsonb", path, operand), nil

	case query.OpLessThan, query.OpLessThanOrEqual, query.OpGreaterThan, query.OpGreaterThanOrEqual:
		operand, err := value.DocumentJSON()
		if err != nil {
			return nil, err
		}
		return squirrel.And{
			squirrel.Expr("jsonb_typeof(data #> ?::text[]) = ?", path, jsonType(value)),
			squirrel.Expr(fmt.Sprintf("data #> ?::text[] %s ?::text::jsonb", op), path, operand),
		}, nil

	case query.OpArrayContains:
		operand, err := query.Array(value).DocumentJSON()
		if err != nil {
			return nil, err
		}
		return squirrel.And{
			squirrel.Expr("jsonb_typeof(data #> ?::text[]) = 'array'", path),
			squirrel.Expr("data #> ?::text[] @> ?::text::jsonb", path, operand),
		}, nil

	case query.OpIn:
		operands, err := itemsJSON(value, false)
		if err != nil {
			return nil, err
		}
		return squirrel.Expr("data #> ?::text[] IN ("+placeholders(len(operands))+")",
			append([]any{path}, operands...)...), nil

	case query.OpArrayContainsAny:
		operands, err := itemsJSON(value, true)
		if err != nil {
			return nil, err
		}
		return squirrel.And{
			squirrel.Expr("jsonb_typeof(data #> ?::text[]) = 'array'", path),
			squirrel.Expr("data #> ?::text[] @> ANY (ARRAY["+placeholders(len(operands))+"])",
				append([]any{path}, operands...)...),
		}, nil
	}
	return nil, fmt.Errorf("%w: operator %q", query.ErrInvalid, op)
}

func jsonType(v query.Value) string {
	switch v.Kind() {
	case query.KindBool:
		return "boolean"
	case query.KindInteger, query.KindDouble:
		return "number"
	default:
		return "string"
	}
}

// itemsJSON encodes every membership operand; wrapped operands are encoded
// as one-element arrays for containment tests.
func itemsJSON(v query.Value, wrapped bool) ([]any, error) {
	items := v.Items()
	out := make([]any, len(items))
	for i, item := range items {
		if wrapped {
			item = query.Array(item)
		}
		s, err := item.DocumentJSON()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?::text::jsonb, ", n), ", ")
}
