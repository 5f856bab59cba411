package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// errorEnvelope matches the api package's envelope format for error
// responses written from middleware.
type errorEnvelope struct {
	Error string `json:"error,omitempty"`
}

func writeEnvelopeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: msg}) //nolint:errcheck
}

// Recoverer returns middleware that recovers from panics, logs the stack
// trace using slog, and returns a 500 Internal Server Error JSON response.
// It should be mounted after StructuredLogger so the request ID is
// available.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered",
					"request_id", chimw.GetReqID(r.Context()),
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeEnvelopeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
