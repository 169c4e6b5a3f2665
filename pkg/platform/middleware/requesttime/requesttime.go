// Package requesttime provides middleware for request-scoped time.
// All operations within a single HTTP request share the same "now", so a
// violation logged through the API carries the time the request arrived.
package requesttime

import (
	"net/http"
	"time"

	"terraguard/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores
// it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
