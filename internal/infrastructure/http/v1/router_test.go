package v1_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "docgate/internal/core/context"
	"docgate/internal/domain/auth"
	"docgate/internal/domain/data"
	"docgate/internal/domain/schema"
	"docgate/internal/infrastructure/fixtures"
	v1 "docgate/internal/infrastructure/http/v1"
	"docgate/internal/infrastructure/storage/memory"
	"docgate/pkg/logger"
)

const fixture = `{
	"settings": {"defaultVersion": "0.0.42", "defaultAppUuid": "stock-app"},
	"schemas": {"0.0.42": {"batch": {
		"type": "record",
		"name": "batch",
		"fields": [
			{"name": "uuid", "type": "string"},
			{"name": "batch_number", "type": "string"},
			{"name": "program", "type": ["null", "string"], "default": null},
			{"name": "quantity", "type": ["null", "double"], "default": null},
			{"name": "email", "type": ["null", "string"], "default": null},
			{"name": "modified", "type": ["null", "long"], "default": null},
			{"name": "version_modified", "type": ["null", "string"], "default": null}
		]
	}}},
	"apps": {"stock-app": {"0.0.42": {"en": {"title": "Stock"}}}},
	"documents": {"batch": [
		{"uuid": "id1", "batch_number": "001", "program": "Malaria", "quantity": 1, "email": "a@example.org", "version_modified": "0.0.42"},
		{"uuid": "id2", "batch_number": "002", "program": "Malaria", "quantity": 2, "email": "a@example.org", "version_modified": "0.0.42"},
		{"uuid": "id3", "batch_number": "003", "program": "Malaria", "quantity": 3, "email": "a@example.org", "version_modified": "0.0.42"},
		{"uuid": "id4", "batch_number": "004", "program": "Malaria", "quantity": 4, "email": "a@example.org", "version_modified": "0.0.42"},
		{"uuid": "id5", "batch_number": "005", "program": "Malaria", "quantity": 5, "email": "a@example.org", "version_modified": "0.0.42"},
		{"uuid": "id6", "batch_number": "006", "program": "Malaria", "quantity": 6, "email": "b@example.org", "version_modified": "0.0.42"}
	]},
	"eligibility": {"collector@example.org": {"batch": ["id1", "id2", "id3", "id4", "id5"]}}
}`

const malariaFilter = `{"fieldFilter":{"field":{"fieldPath":"program"},"op":"==","value":{"stringValue":"Malaria"}}}`

// countingStore counts queries that reach the document store.
type countingStore struct {
	*memory.Store
	queries atomic.Int32
}

func (s *countingStore) Collection(docType string) data.Query {
	s.queries.Add(1)
	return s.Store.Collection(docType)
}

type testServer struct {
	router *gin.Engine
	store  *countingStore
	token  string
}

func newTestServer(t *testing.T, basePath string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	file, err := fixtures.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	mem := memory.FromFixtures(file)
	store := &countingStore{Store: mem}

	registry := schema.NewRegistry(mem, schema.Caches{}, time.Minute)
	service := data.NewService(data.ServiceConfig{
		Store:       store,
		Eligibility: mem,
		Schemas:     registry,
		Executor:    data.ExecutorConfig{BatchSize: 2, Parallelism: 2},
	})

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	token, _, err := jwtService.GenerateAccessToken(appctx.Caller{UserID: "collector@example.org", RoleUUID: "r1"})
	require.NoError(t, err)

	router := v1.NewRouter(v1.RouterConfig{
		BasePath:     basePath,
		Logger:       logger.Nop(),
		JWTValidator: jwtService,
		Data:         service,
		Schemas:      registry,
		Backend:      mem,
		BackendName:  "memory",
		Metrics:      http.NotFoundHandler(),
	})
	return &testServer{router: router, store: store, token: token}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Code
}

func TestQuery_UnorderedFilterReturnsAllEligible(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/data/batch/query", `{"where":{"filter":`+malariaFilter+`}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	docs := decodeArray(t, w)
	require.Len(t, docs, 5)
	seen := map[any]bool{}
	for _, doc := range docs {
		assert.False(t, seen[doc["uuid"]], "duplicate %v", doc["uuid"])
		seen[doc["uuid"]] = true
		assert.NotContains(t, doc, "email", "read-banned fields are stripped")
	}
	assert.NotContains(t, seen, "id6")
}

func TestQuery_EmptyBodyReturnsEverythingEligible(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/data/batch/query", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeArray(t, w), 5)
}

func TestQuery_StartCursorBeforeExcludesBoundary(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/data/batch/query", `{
		"orderBy": [{"field": {"fieldPath": "batch_number"}, "direction": "ASCENDING"}],
		"startAt": {"values": [{"stringValue": "003"}], "before": true}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	docs := decodeArray(t, w)
	var numbers []any
	for _, doc := range docs {
		numbers = append(numbers, doc["batch_number"])
	}
	assert.Equal(t, []any{"004", "005"}, numbers)
}

func TestCreate_MissingRequiredFieldsIsBadRequest(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/data/batch/create", `{"bad": "doc"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var res data.WriteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Zero(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Contains(t, res.Errors[0].Errors, "extra field: bad")
	assert.Contains(t, res.Errors[0].Errors, "missing required field: batch_number")
}

func TestCreate_Success(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/data/batch/create", `[{"batch_number": "007", "quantity": 1.5}]`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res data.WriteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Success)
	assert.Empty(t, res.Errors)
}

func TestQuery_LimitIsNotImplemented(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/data/batch/query", `{"limit": 1, "where": {"filter": `+malariaFilter+`}}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "not implemented")
	assert.Zero(t, s.store.queries.Load(), "the backend is never queried")
}

func TestRead_IneligibleIsNotFound(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/data/batch/read/id6", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	missing := s.do(t, http.MethodGet, "/data/batch/read/nope", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.JSONEq(t, strings.ReplaceAll(missing.Body.String(), "nope", "id6"), w.Body.String(),
		"an ineligible document is indistinguishable from a missing one")
}

func TestRead_Eligible(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/data/batch/read/id2", "")

	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "002", doc["batch_number"])
	assert.Equal(t, 2.0, doc["quantity"])
	assert.NotContains(t, doc, "email")
}

func TestRead_UnknownType(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/data/shipment/read/id1", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, "")

	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad token":      "Bearer not-a-jwt",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/data/batch/read/id1", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
		})
	}
}

func TestMeta(t *testing.T) {
	s := newTestServer(t, "/stock-app")

	t.Run("settings", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/stock-app/meta/app", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"defaultVersion": "0.0.42", "defaultAppUuid": "stock-app"}`, w.Body.String())
	})

	t.Run("app", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/stock-app/meta/app/0.0.42/en", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"title": "Stock"}`, w.Body.String())

		missing := s.do(t, http.MethodGet, "/stock-app/meta/app/0.0.42/fr", "")
		assert.Equal(t, http.StatusNotFound, missing.Code)
	})

	t.Run("schema list", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/stock-app/meta/schema/0.0.42", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `["batch"]`, w.Body.String())

		missing := s.do(t, http.MethodGet, "/stock-app/meta/schema/9.9.9", "")
		assert.Equal(t, http.StatusNotFound, missing.Code)
	})

	t.Run("schema view", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/stock-app/meta/schema/0.0.42/batch", "")
		require.Equal(t, http.StatusOK, w.Code)
		var view struct {
			Name   string `json:"name"`
			Fields []struct {
				Name string `json:"name"`
			} `json:"fields"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "batch", view.Name)
		var names []string
		for _, f := range view.Fields {
			names = append(names, f.Name)
		}
		assert.Equal(t, []string{"uuid", "batch_number", "program", "quantity", "modified", "version_modified"}, names)
	})
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t, "/stock-app")

	live := httptest.NewRecorder()
	s.router.ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/stock-app/health/live", nil))
	assert.Equal(t, http.StatusOK, live.Code)

	ready := httptest.NewRecorder()
	s.router.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/stock-app/health/ready", nil))
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.JSONEq(t, `{"status": "ok", "checks": {"memory": "healthy"}}`, ready.Body.String())

	unknown := s.do(t, http.MethodGet, "/stock-app/nowhere", "")
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, unknown))

	unprefixed := s.do(t, http.MethodGet, "/data/batch/read/id1", "")
	assert.Equal(t, http.StatusNotFound, unprefixed.Code)

	assert.NotEmpty(t, live.Header().Get("X-Request-ID"))
}
