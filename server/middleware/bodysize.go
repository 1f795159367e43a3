package middleware

import (
	"net/http"

	"github.com/kbukum/whisper-subtitle/util"
)

const defaultMaxBodySize = 512 << 20

// BodySizeLimit caps request bodies at maxSize ("512MB", "10MB", ...).
// Audio uploads make the default large.
func BodySizeLimit(maxSize string) Middleware {
	limit := util.ParseSize(maxSize, defaultMaxBodySize)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
