package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-service/internal/pkg/log"
)

func TestLogging_WritesOneLineWithStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := mux.NewRouter()
	r.Use(Logging(base))
	r.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)

	out := buf.String()
	require.Contains(t, out, `"msg":"http"`)
	require.Contains(t, out, `"status":418`)
	require.Contains(t, out, `"request_id":"req-42"`)
	require.Contains(t, out, `"path":"/ping"`)
}

func TestLogging_PutsLoggerIntoContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := mux.NewRouter()
	r.Use(Logging(base))
	r.HandleFunc("/ctx", func(w http.ResponseWriter, req *http.Request) {
		log.From(req.Context()).Info("from_handler")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Запись из обработчика унаследовала request_id контекстного логгера.
	require.Contains(t, buf.String(), `"msg":"from_handler"`)
	require.Contains(t, buf.String(), `"request_id"`)
}

func TestRecover_PanicBecomes500(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := mux.NewRouter()
	r.Use(Recover(base))
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() { r.ServeHTTP(rec, req) })
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
	require.Contains(t, buf.String(), `"msg":"panic_recovered"`)
	require.Contains(t, buf.String(), "kaboom")
}

func TestWithTimeout_SetsDeadline(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	r.Use(WithTimeout(5 * time.Second))
	r.HandleFunc("/dl", func(w http.ResponseWriter, req *http.Request) {
		if _, ok := req.Context().Deadline(); !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dl", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWithTimeout_KeepsExistingDeadline(t *testing.T) {
	t.Parallel()

	var got time.Time

	r := mux.NewRouter()
	r.Use(WithTimeout(time.Hour))
	r.HandleFunc("/dl", func(w http.ResponseWriter, req *http.Request) {
		got, _ = req.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	})

	want := time.Now().Add(time.Second)
	req := httptest.NewRequest(http.MethodGet, "/dl", nil)

	ctx, cancel := context.WithDeadline(req.Context(), want)
	defer cancel()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(ctx))

	require.WithinDuration(t, want, got, time.Millisecond)
}
