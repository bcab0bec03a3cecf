package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newStackRouter(cfg *Config, logs *bytes.Buffer) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Config: cfg,
	}) {
		r.Use(mw)
	}
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	return r
}

func TestMiddlewareSecureHeaders(t *testing.T) {
	var logs bytes.Buffer
	rr := httptest.NewRecorder()
	newStackRouter(&Config{}, &logs).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Contains(t, logs.String(), `"path":"/ping"`)
}

func TestMiddlewareRateLimit(t *testing.T) {
	var logs bytes.Buffer
	h := newStackRouter(&Config{RateLimitPerMin: 2}, &logs)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestMiddlewareRecoversPanics(t *testing.T) {
	var logs bytes.Buffer
	rr := httptest.NewRecorder()
	newStackRouter(nil, &logs).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
