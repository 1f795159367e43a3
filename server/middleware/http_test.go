package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/auth"
	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/server/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func decodeError(t *testing.T, body io.Reader) errors.ErrorBody {
	t.Helper()
	var resp errors.ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("body is not an error envelope: %v", err)
	}
	return resp.Error
}

func TestRecovery(t *testing.T) {
	h := middleware.Recovery(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeError(t, rr.Body); body.Code != errors.ErrCodeInternal {
		t.Errorf("code = %s", body.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if id := rr.Header().Get(middleware.RequestIDHeader); id == "" || id != seen {
		t.Errorf("generated id %q, context id %q", id, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get(middleware.RequestIDHeader) != "req-42" || seen != "req-42" {
		t.Errorf("existing id not preserved: %q", rr.Header().Get(middleware.RequestIDHeader))
	}
}

func TestCORS(t *testing.T) {
	h := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{"https://ui.example"},
		AllowedMethods: []string{"GET", "POST"},
	})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/engines", http.NoBody)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://ui.example" {
		t.Errorf("preflight: status %d, headers %v", rr.Code, rr.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}
}

func TestBodySizeLimit(t *testing.T) {
	h := middleware.BodySizeLimit("8B")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	middleware.Chain(mark("a"), mark("b"), middleware.RequestLogger(logger.Nop()))(ok).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if strings.Join(order, "") != "ab" {
		t.Errorf("order = %v", order)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RateLimit(2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests {
			if body := decodeError(t, rr.Body); body.Code != errors.ErrCodeRateLimited || !body.Retryable {
				t.Errorf("body = %+v", body)
			}
		}
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != 429 {
		t.Errorf("codes = %v", codes)
	}
}

func TestAuth(t *testing.T) {
	svc, err := auth.NewService(auth.Config{Secret: strings.Repeat("s", 32)})
	if err != nil {
		t.Fatal(err)
	}
	valid, _ := svc.Generate("ops", time.Hour)

	r := gin.New()
	r.Use(middleware.Auth(svc))
	r.GET("/api/v1/tasks", func(c *gin.Context) {
		claims, _ := auth.ClaimsFromContext(c.Request.Context())
		c.String(http.StatusOK, claims.Subject)
	})

	tests := []struct {
		name   string
		header string
		status int
		code   errors.ErrorCode
	}{
		{"missing", "", 401, errors.ErrCodeUnauthorized},
		{"wrong scheme", "Basic abc", 401, errors.ErrCodeUnauthorized},
		{"bad token", "Bearer nope", 401, errors.ErrCodeInvalidToken},
		{"valid", "Bearer " + valid, 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("status = %d", rr.Code)
			}
			if tt.code != "" {
				if body := decodeError(t, rr.Body); body.Code != tt.code {
					t.Errorf("code = %s", body.Code)
				}
			} else if rr.Body.String() != "ops" {
				t.Errorf("body = %q", rr.Body.String())
			}
		})
	}
}
