package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/app"
)

func newMiddlewareServer() *Server {
	return &Server{app: &app.App{Logger: arbor.NewLogger()}}
}

// isTraced reports whether the middleware chain wrapped the writer for
// request/response logging
func isTraced(w http.ResponseWriter) bool {
	_, ok := w.(*statusRecorder)
	return ok
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	s := newMiddlewareServer()
	handler := s.withConditionalMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("bad template")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/templates", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddlewareAnswersPreflight(t *testing.T) {
	s := newMiddlewareServer()
	reached := false
	handler := s.withConditionalMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/imports", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, reached, "preflight must not reach the handler")
}

func TestMiddlewareTracesAPIRequests(t *testing.T) {
	s := newMiddlewareServer()
	var traced bool
	handler := s.withConditionalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		traced = isTraced(w)
		w.Write([]byte(`{"ok":true}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, traced)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddlewareSkipsAssetTracing(t *testing.T) {
	s := newMiddlewareServer()
	var traced bool
	handler := s.withConditionalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		traced = isTraced(w)
		w.Write([]byte("png-bytes"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/img/hero.png", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, traced, "asset requests are served without tracing")
}

func TestMiddlewareBypassesWebSocketPath(t *testing.T) {
	s := newMiddlewareServer()
	var traced bool
	handler := s.withConditionalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		traced = isTraced(w)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.False(t, traced, "the upgrade path must see the raw writer")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
