package middleware

import "net/http"

// NoCache disables client and proxy caching on every response, so the admin
// panel always sees fresh message and registration lists.
func NoCache() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "-1")
			next.ServeHTTP(w, r)
		})
	}
}
