package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID assigns every request a unique id, stores it in the context, and
// echoes it in the X-Request-ID response header. An id supplied by the caller
// is preserved.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(setRequestID(r.Context(), id)))
	})
}
