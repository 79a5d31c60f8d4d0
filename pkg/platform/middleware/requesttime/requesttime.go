// Package requesttime pins the clock for a single HTTP request. Token expiry
// checks and audit timestamps downstream read it through requestcontext.Now.
package requesttime

import (
	"net/http"
	"time"

	"signaccess/pkg/requestcontext"
)

// Middleware stores the time the request arrived in its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
