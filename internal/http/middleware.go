package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parsakn/smartlight-client/internal/telemetry"
)

// LogProvider provides request logger for middleware.
type LogProvider interface {
	Logger() *slog.Logger
}

// RequestLogger logs one line per API call. Lamp routes carry the lamp id,
// server errors log at warn and health probes at debug.
func RequestLogger(provider LogProvider) func(http.Handler) http.Handler {
	logger := slog.Default()
	if provider != nil && provider.Logger() != nil {
		logger = provider.Logger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			attrs := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", routePattern(r),
				"status", rec.Status(),
				"bytes", rec.size,
				"duration_ms", time.Since(startedAt).Milliseconds(),
			}
			if id := chi.URLParam(r, "id"); id != "" {
				attrs = append(attrs, "lamp_id", id)
			}
			if rec.upgraded {
				attrs = append(attrs, "upgraded", true)
			}

			level := slog.LevelInfo
			switch {
			case rec.Status() >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case r.URL.Path == "/healthz":
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "api call", attrs...)
		})
	}
}

// routePattern is the matched chi pattern, e.g. /api/lamps/{id}/toggle, so
// logs group by endpoint rather than by lamp.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// RecoverJSON turns a handler panic into a 500 in the API error shape and
// reports it with its stack.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			slog.Default().Error("handler panicked",
				"request_id", middleware.GetReqID(r.Context()),
				"path", r.URL.Path,
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			telemetry.CaptureError(fmt.Errorf("handler panic on %s %s: %v", r.Method, r.URL.Path, recovered),
				map[string]string{"path": r.URL.Path, "request_id": middleware.GetReqID(r.Context())})

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": "internal_error", "message": "Internal server error"},
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status and size written and lets the events
// websocket hijack the connection.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	size     int
	upgraded bool
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(body []byte) (int, error) {
	n, err := w.ResponseWriter.Write(body)
	w.size += n
	return n, err
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.upgraded = true
	return hijacker.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
