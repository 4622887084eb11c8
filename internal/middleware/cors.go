package middleware

import "net/http"

// Cors opens the API to any origin. The public site and the admin panel are
// served from a different host than the API, so every response carries the
// full CORS header set.
func Cors() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Origin, X-Requested-With, Content-Type, Accept, Authorization, X-WTR-TOKEN",
			)
			next.ServeHTTP(w, r)
		})
	}
}
