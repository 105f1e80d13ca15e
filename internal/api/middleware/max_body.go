package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. A declared Content-Length
// over the cap is rejected up front; streamed bodies fail on read with
// *http.MaxBytesError, which handlers turn into 413. limit <= 0 disables it.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		tooLarge := fmt.Sprintf("request body too large (limit %d bytes)", limit)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, tooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
