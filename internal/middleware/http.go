// Package middleware holds the HTTP middleware chain: request ids and
// logging, metrics, CORS, panic recovery, rate limiting and JWT auth.
package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
)

const RequestIDHeader = "X-Request-ID"

// HTTPRecorder is the subset of metrics the HTTP chain reports to.
type HTTPRecorder interface {
	IncrementInFlight()
	DecrementInFlight()
	RecordHTTPRequest(method, path string, status int, d time.Duration)
}

// Logging tags each request with an id (taken from X-Request-ID when the
// caller sent one) and logs it once it has been served.
func Logging(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = logging.NewRequestID()
			}
			ctx := logging.WithRequestID(r.Context(), id)
			w.Header().Set(RequestIDHeader, id)

			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			entry := logging.WithContext(ctx, log).WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.statusCode,
				"duration": time.Since(start).String(),
				"remote":   clientIP(r),
			})
			switch {
			case wrapped.statusCode >= 500:
				entry.Error("request")
			case wrapped.statusCode >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
		})
	}
}

// Metrics records request counts and latency by route template.
func Metrics(m HTTPRecorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.IncrementInFlight()
			defer m.DecrementInFlight()

			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
		})
	}
}

// Recover turns a panic into a 500 and logs the stack.
func Recover(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logging.WithContext(r.Context(), log).WithFields(logrus.Fields{
						"panic": p,
						"stack": string(debug.Stack()),
					}).Error("handler panicked")
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins; "*" allows any.
func CORS(origins []string) mux.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Location")
				h.Set("Access-Control-Max-Age", "3600")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func wrap(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
