package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKeyLog string

const logInfoKey contextKeyLog = "log_info"

// logInfo collects fields set by inner middleware so the access log line can
// include them once the request completes.
type logInfo struct {
	caller string
}

// setLogCaller records who made the request for the access log. Only a
// short prefix of a key is kept since the key itself is the credential.
func setLogCaller(ctx context.Context, caller string) {
	if info, ok := ctx.Value(logInfoKey).(*logInfo); ok {
		info.caller = caller
	}
}

func keyPrefix(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// Logger returns an HTTP middleware that logs every request using structured
// logging. It captures the method, path, status code, response size, duration,
// request ID, remote address and, for authorized requests, the calling key.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			info := &logInfo{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logInfoKey, info)))

			level := slog.LevelInfo
			if ww.status >= 500 {
				level = slog.LevelError
			} else if ww.status >= 400 {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if info.caller != "" {
				attrs = append(attrs, "caller", info.caller)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// bytes written for logging purposes.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter, required for http.Flusher
// and other interface assertions through middleware chains.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
