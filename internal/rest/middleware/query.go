package middleware

import (
	"net/http"
	"strings"
)

// StripEmptyQueryParams drops query values that are blank after trimming, so that
// "?limit=" is treated like an absent limit by the request validation.
func StripEmptyQueryParams() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}
			q := r.URL.Query()
			for key, values := range q {
				kept := values[:0]
				for _, v := range values {
					if v = strings.TrimSpace(v); v != "" {
						kept = append(kept, v)
					}
				}
				if len(kept) == 0 {
					q.Del(key)
				} else {
					q[key] = kept
				}
			}
			r.URL.RawQuery = q.Encode()
			next.ServeHTTP(w, r)
		})
	}
}
