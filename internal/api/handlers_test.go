package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ros-node-supervisor/internal/common/logger"
	"ros-node-supervisor/internal/nodeproc"
)

func setupTestHandler(t *testing.T) (*Handler, *nodeproc.Registry, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	registry := nodeproc.NewRegistry(nodeproc.RegistryConfig{
		RosDistro:          "humble",
		LaunchTimeout:      time.Second,
		MonitorInterval:    time.Hour,
		GraceTimeout:       time.Second,
		EventQueueCapacity: 64,
		VerboseCapture:     true,
	}, nil, "", log)
	handler := NewHandler(registry, log)

	router := gin.New()
	return handler, registry, router
}

func TestHandler_HealthCheck(t *testing.T) {
	handler, _, router := setupTestHandler(t)
	router.GET("/health", handler.HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestHandler_ListNodesEmpty(t *testing.T) {
	handler, _, router := setupTestHandler(t)
	router.GET("/nodes", handler.ListNodes)

	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Nodes []string `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Nodes) != 0 {
		t.Errorf("expected no nodes, got %v", resp.Nodes)
	}
}

func TestHandler_LaunchNodeRejectsInvalidBody(t *testing.T) {
	handler, _, router := setupTestHandler(t)
	router.POST("/nodes/launch", handler.LaunchNode)

	req := httptest.NewRequest(http.MethodPost, "/nodes/launch", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_TerminateNodeRequiresName(t *testing.T) {
	handler, _, router := setupTestHandler(t)
	router.POST("/nodes/terminate", handler.TerminateNode)

	req := httptest.NewRequest(http.MethodPost, "/nodes/terminate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_TerminateUnknownNodeIsNoOp(t *testing.T) {
	handler, _, router := setupTestHandler(t)
	router.POST("/nodes/terminate", handler.TerminateNode)

	req := httptest.NewRequest(http.MethodPost, "/nodes/terminate?name=ghost", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_NodeStatusUnknownNodeIsNotFound(t *testing.T) {
	handler, _, router := setupTestHandler(t)
	router.GET("/nodes/:name/status", handler.NodeStatus)

	req := httptest.NewRequest(http.MethodGet, "/nodes/ghost/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}
