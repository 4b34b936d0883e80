package httpmw

import "net/http"

// MaxBody limits request bodies to limit bytes. Reads past the limit return
// *http.MaxBytesError, which validate turns into a 413. Requests without a
// body and a non-positive limit pass through untouched.
func MaxBody(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
