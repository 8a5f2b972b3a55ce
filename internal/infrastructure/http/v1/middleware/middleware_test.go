package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/core/apperror"
	appctx "docgate/internal/core/context"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler())
	r.NoRoute(NotFound())
	r.GET("/x", handlers...)
	return r
}

func serve(r *gin.Engine, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		handler gin.HandlerFunc
		status  int
		body    string
		raw     bool
	}{
		{
			name: "app error",
			handler: func(c *gin.Context) {
				_ = c.Error(apperror.NewPrecondition("filter needs an index"))
			},
			status: http.StatusBadRequest,
			body:   `{"code":"FAILED_PRECONDITION","message":"filter needs an index","details":null}`,
		},
		{
			name: "plain error is hidden",
			handler: func(c *gin.Context) {
				_ = c.Error(errors.New("connection reset"))
			},
			status: http.StatusInternalServerError,
			body:   `{"code":"INTERNAL_ERROR","message":"Internal server error","details":{"request_id":"req-1"}}`,
		},
		{
			name: "started response is left alone",
			handler: func(c *gin.Context) {
				c.Status(http.StatusOK)
				_, _ = c.Writer.WriteString(`[{"uuid":"a"}`)
				_ = c.Error(apperror.NewDatabase(errors.New("lost connection")))
			},
			status: http.StatusOK,
			body:   `[{"uuid":"a"}`,
			raw:    true,
		},
		{
			name: "panic",
			handler: func(c *gin.Context) {
				panic("boom")
			},
			status: http.StatusInternalServerError,
			body:   `{"code":"INTERNAL_ERROR","message":"Internal server error","details":{"request_id":"req-1"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newEngine(tt.handler), "/x", HeaderRequestID, "req-1")

			assert.Equal(t, tt.status, w.Code)
			if tt.raw {
				assert.Equal(t, tt.body, w.Body.String())
			} else {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	w := serve(newEngine(func(c *gin.Context) {}), "/missing")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestTrace(t *testing.T) {
	var seen *appctx.TraceContext
	r := newEngine(func(c *gin.Context) {
		seen = appctx.GetTrace(c.Request.Context())
	})

	w := serve(r, "/x", HeaderRequestID, "req-7")

	require.NotNil(t, seen)
	assert.Equal(t, "req-7", seen.RequestID)
	assert.NotEmpty(t, seen.TraceID)
	assert.Equal(t, "req-7", w.Header().Get(HeaderRequestID))
	assert.Equal(t, seen.TraceID, w.Header().Get(HeaderTraceID))
}

type stubValidator struct {
	caller *appctx.Caller
	err    error
}

func (s stubValidator) ValidateToken(string) (*appctx.Caller, error) {
	return s.caller, s.err
}

func TestAuth(t *testing.T) {
	var got *appctx.Caller
	ok := func(c *gin.Context) {
		got = appctx.GetCaller(c.Request.Context())
		c.Status(http.StatusNoContent)
	}

	r := newEngine(Auth(stubValidator{caller: &appctx.Caller{UserID: "u@example.org"}}), ok)
	w := serve(r, "/x", "Authorization", "bearer tok")
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u@example.org", got.UserID)

	r = newEngine(Auth(stubValidator{err: errors.New("expired")}), ok)
	w = serve(r, "/x", "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"invalid token"`)
}
