package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbukum/whisper-subtitle/component"
	apperrors "github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/server/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestServer(t *testing.T, checker func(context.Context) []component.Health) *Server {
	t.Helper()
	s := New(Config{Host: "127.0.0.1", Port: 0}, logger.Nop())
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))
	s.RegisterSystemEndpoints("whisper-subtitle", checker, reg)
	return s
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8000 || cfg.Host != "0.0.0.0" {
		t.Errorf("addr = %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.MaxBodySize != "512MB" || cfg.WriteTimeout != 30*time.Minute {
		t.Errorf("limits = %q %v", cfg.MaxBodySize, cfg.WriteTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := Config{Port: 70000}
	if err := bad.Validate(); err == nil {
		t.Error("expected port error")
	}
}

func TestHealthEndpoint(t *testing.T) {
	healthy := func(context.Context) []component.Health {
		return []component.Health{{Name: "scheduler", Status: component.StatusHealthy}}
	}
	w := do(newTestServer(t, healthy), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status     string             `json:"status"`
		Components []component.Health `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || len(body.Components) != 1 {
		t.Errorf("body = %+v", body)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	checker := func(context.Context) []component.Health {
		return []component.Health{
			{Name: "redis", Status: component.StatusDegraded},
			{Name: "database", Status: component.StatusUnhealthy},
		}
	}
	s := newTestServer(t, checker)
	if w := do(s, http.MethodGet, "/health"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d", w.Code)
	}
}

func TestReadyDegraded(t *testing.T) {
	checker := func(context.Context) []component.Health {
		return []component.Health{{Name: "redis", Status: component.StatusDegraded}}
	}
	if w := do(newTestServer(t, checker), http.MethodGet, "/ready"); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestInfoAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	w := do(s, http.MethodGet, "/info")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service":"whisper-subtitle"`) {
		t.Errorf("info = %d %s", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "test_total") {
		t.Errorf("metrics = %d %s", w.Code, w.Body.String())
	}
}

func TestRespondWithError(t *testing.T) {
	s := New(Config{}, logger.Nop())
	s.Engine().GET("/missing", func(c *gin.Context) {
		RespondWithError(c, apperrors.NotFound("task", "t1"))
	})
	s.Engine().GET("/boom", func(c *gin.Context) {
		RespondWithError(c, errors.New("disk on fire"))
	})
	s.Engine().GET("/ok", func(c *gin.Context) { RespondOK(c, gin.H{"id": "t1"}) })

	w := do(s, http.MethodGet, "/missing")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"NOT_FOUND"`) {
		t.Errorf("missing = %d %s", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/boom")
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "disk on fire") {
		t.Errorf("boom = %d %s", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/ok")
	if w.Code != http.StatusOK || w.Body.String() != `{"data":{"id":"t1"}}` {
		t.Errorf("ok = %d %s", w.Code, w.Body.String())
	}
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	routes := s.Routes()
	if len(routes) != 4 {
		t.Fatalf("routes = %+v", routes)
	}
	if routes[0].Path != "/health" || routes[3].Path != "/ready" {
		t.Errorf("order = %+v", routes)
	}
}

func TestComponentLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	s.httpServer.Addr = "127.0.0.1:0"
	c := NewComponent(s)
	if h := c.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("before start = %s", h.Status)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/ready")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if h := c.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("after start = %s", h.Status)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
