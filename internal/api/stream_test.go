package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStreamServeUnknownNodeIsNotFound(t *testing.T) {
	_, registry, router := setupTestHandler(t)
	stream := NewStreamHandler(registry, testLogger(t))
	router.GET("/nodes/:name/stream", stream.Serve)

	req := httptest.NewRequest(http.MethodGet, "/nodes/ghost/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}
