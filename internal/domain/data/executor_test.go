package data_test

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/core/apperror"
	"docgate/internal/domain/data"
	"docgate/internal/domain/query"
	"docgate/internal/infrastructure/storage/memory"
)

func runQuery(t *testing.T, e *env, body string) ([]byte, error) {
	t.Helper()
	q, err := data.ParseQuery([]byte(body))
	require.NoError(t, err)
	var buf bytes.Buffer
	err = e.service.Query(callerCtx(collector), "batch", q, &buf)
	return buf.Bytes(), err
}

func TestQuery_UnorderedFilter(t *testing.T) {
	e := newEnv(t, 5, 5, data.ExecutorConfig{})

	raw, err := runQuery(t, e, `{"where": {"filter": {"fieldFilter": {
		"field": {"fieldPath": "program"}, "op": "EQUAL", "value": {"stringValue": "Malaria"}}}}}`)
	require.NoError(t, err)

	docs := decodeArray(t, raw)
	assert.Len(t, docs, 5)
	assert.ElementsMatch(t, []any{"id1", "id2", "id3", "id4", "id5"}, field(docs, "uuid"))
}

func TestQuery_UnorderedAcrossBatches(t *testing.T) {
	e := newEnv(t, 40, 25, data.ExecutorConfig{BatchSize: 10, Parallelism: 3})

	raw, err := runQuery(t, e, `{"where": {"filter": {"fieldFilter": {
		"field": {"fieldPath": "quantity"}, "op": "<=", "value": {"integerValue": "23"}}}}}`)
	require.NoError(t, err)

	docs := decodeArray(t, raw)
	require.Len(t, docs, 23)
	seen := map[any]bool{}
	for _, d := range docs {
		assert.False(t, seen[d["uuid"]], "duplicate %v", d["uuid"])
		seen[d["uuid"]] = true
	}
	// one probe plus three batches
	assert.EqualValues(t, 4, e.store.batchCalls.Load())
	assert.Equal(t, 3, e.metrics.batches)
	assert.Equal(t, 23, e.metrics.emitted)
}

func TestQuery_SingleMatchAcrossBatches(t *testing.T) {
	e := newEnv(t, 30, 30, data.ExecutorConfig{BatchSize: 10})

	raw, err := runQuery(t, e, `{"where": {"filter": {"fieldFilter": {
		"field": {"fieldPath": "batch_number"}, "op": "==", "value": {"stringValue": "017"}}}}}`)
	require.NoError(t, err)

	docs := decodeArray(t, raw)
	require.Len(t, docs, 1)
	assert.Equal(t, "id17", docs[0]["uuid"])
}

func TestQuery_NoMatches(t *testing.T) {
	e := newEnv(t, 12, 12, data.ExecutorConfig{BatchSize: 5})

	raw, err := runQuery(t, e, `{"where": {"filter": {"fieldFilter": {
		"field": {"fieldPath": "program"}, "op": "==", "value": {"stringValue": "TB"}}}}}`)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))
}

func TestQuery_EmptyEligibility(t *testing.T) {
	e := newEnv(t, 5, 0, data.ExecutorConfig{})

	raw, err := runQuery(t, e, ``)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))
	assert.Zero(t, e.store.batchCalls.Load(), "no filter means no probe")
}

func TestQuery_EligibilityRestricts(t *testing.T) {
	e := newEnv(t, 5, 2, data.ExecutorConfig{})

	raw, err := runQuery(t, e, `null`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"id1", "id2"}, field(decodeArray(t, raw), "uuid"))
}

func TestQuery_ReadTransform(t *testing.T) {
	e := newEnv(t, 1, 1, data.ExecutorConfig{})

	raw, err := runQuery(t, e, ``)
	require.NoError(t, err)
	docs := decodeArray(t, raw)
	require.Len(t, docs, 1)
	assert.NotContains(t, docs[0], "email")
	assert.Equal(t, 1.0, docs[0]["quantity"])
	assert.Equal(t, "001", docs[0]["batch_number"])
}

func TestQuery_OrderedStartCursor(t *testing.T) {
	e := newEnv(t, 5, 5, data.ExecutorConfig{BatchSize: 2})

	raw, err := runQuery(t, e, `{
		"orderBy": [{"field": {"fieldPath": "batch_number"}, "direction": "ASCENDING"}],
		"startAt": {"values": [{"stringValue": "003"}], "before": true}
	}`)
	require.NoError(t, err)
	assert.Equal(t, []any{"004", "005"}, field(decodeArray(t, raw), "batch_number"))
}

func TestQuery_OrderedDescendingWithEnd(t *testing.T) {
	e := newEnv(t, 12, 12, data.ExecutorConfig{BatchSize: 5, Parallelism: 2})

	raw, err := runQuery(t, e, `{
		"where": {"filter": {"fieldFilter": {"field": {"fieldPath": "quantity"}, "op": ">", "value": {"integerValue": "2"}}}},
		"orderBy": [{"field": {"fieldPath": "quantity"}, "direction": "DESCENDING"}],
		"endAt": {"values": [{"doubleValue": 9}], "before": false}
	}`)
	require.NoError(t, err)
	assert.Equal(t, []any{12.0, 11.0, 10.0, 9.0}, field(decodeArray(t, raw), "quantity"))
}

func TestQuery_UnmatchedStartCursor(t *testing.T) {
	e := newEnv(t, 5, 5, data.ExecutorConfig{})

	raw, err := runQuery(t, e, `{
		"orderBy": [{"field": {"fieldPath": "batch_number"}}],
		"startAt": {"values": [{"stringValue": "999"}]}
	}`)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))
}

func TestQuery_PreconditionSurfacesAsClientError(t *testing.T) {
	e := newEnv(t, 25, 25, data.ExecutorConfig{})
	e.store.Index("batch", "program")

	raw, err := runQuery(t, e, `{"where": {"filter": {"fieldFilter": {
		"field": {"fieldPath": "quantity"}, "op": "<", "value": {"integerValue": "3"}}}}}`)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.GetHTTPStatus(err))
	assert.ErrorIs(t, err, data.ErrPrecondition)
	assert.Empty(t, raw)
	assert.EqualValues(t, 1, e.store.batchCalls.Load(), "only the probe ran")
	assert.Equal(t, 1, e.metrics.rejected)
}

func TestQuery_BackendFailure(t *testing.T) {
	e := newEnv(t, 25, 25, data.ExecutorConfig{BatchSize: 10, Parallelism: 2})
	e.store.failBatch.Store(true)

	raw, err := runQuery(t, e, ``)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperror.GetHTTPStatus(err))
	assert.Empty(t, raw)
}

func TestQuery_CancelledContext(t *testing.T) {
	e := newEnv(t, 25, 25, data.ExecutorConfig{BatchSize: 5})
	ctx, cancel := context.WithCancel(callerCtx(collector))
	cancel()

	var buf bytes.Buffer
	err := e.service.Query(ctx, "batch", nil, &buf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.Bytes())
}

// delayedStore makes later batches finish first.
type delayedStore struct {
	*memory.Store
	delay map[string]time.Duration
}

func (s delayedStore) Collection(docType string) data.Query {
	return delayedQuery{Query: s.Store.Collection(docType), delay: s.delay}
}

type delayedQuery struct {
	data.Query
	delay map[string]time.Duration
	wait  time.Duration
}

func (q delayedQuery) Where(field string, op query.Operator, value query.Value) data.Query {
	return delayedQuery{Query: q.Query.Where(field, op, value), delay: q.delay, wait: q.wait}
}

func (q delayedQuery) IDIn(ids []string) data.Query {
	var wait time.Duration
	if len(ids) > 0 {
		wait = q.delay[ids[0]]
	}
	return delayedQuery{Query: q.Query.IDIn(ids), delay: q.delay, wait: wait}
}

func (q delayedQuery) Limit(n int) data.Query {
	return delayedQuery{Query: q.Query.Limit(n), delay: q.delay, wait: q.wait}
}

func (q delayedQuery) All(ctx context.Context) ([]data.Document, error) {
	select {
	case <-time.After(q.wait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return q.Query.All(ctx)
}

func TestExecutor_UnorderedKeepsPartitionOrder(t *testing.T) {
	const n, batchSize = 40, 3
	e := newEnv(t, n, 0, data.ExecutorConfig{})

	rng := rand.New(rand.NewPCG(7, 11))
	for run := 0; run < 5; run++ {
		ids := make([]string, 0, n)
		for _, i := range rng.Perm(n) {
			ids = append(ids, fmt.Sprintf("id%d", i+1))
		}

		batches := data.Partition(ids, batchSize)
		delay := map[string]time.Duration{}
		for i, batch := range batches {
			jitter := time.Duration(rng.IntN(500)) * time.Microsecond
			delay[batch[0]] = time.Duration(len(batches)-i)*time.Millisecond + jitter
		}

		exec := data.NewExecutor(delayedStore{Store: e.store.Store, delay: delay},
			data.ExecutorConfig{BatchSize: batchSize, Parallelism: 8})

		var buf bytes.Buffer
		require.NoError(t, exec.Run(context.Background(), "batch", ids, &query.StructuredQuery{}, nil, &buf))

		docs := decodeArray(t, buf.Bytes())
		got := make([]string, len(docs))
		for i, d := range docs {
			got[i], _ = d["uuid"].(string)
		}
		assert.Equal(t, ids, got, "run %d", run)
	}
}
