package middleware

import (
	"net/http"

	"github.com/helixcare/clinidex/internal/api"
)

// MaxBodyBytes caps request body size at limit bytes. Declared oversized
// bodies are rejected up front; chunked bodies are wrapped so reads past
// the limit fail inside the handler.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
