package middleware

import (
	"crypto/subtle"
	"net/http"

	"proptyos-backend/internal/auth"
	"proptyos-backend/internal/transport"
)

// AdminAuth guards mutating routes. A request passes with either the static
// X-Admin-Key header or a valid access token cookie from the login flow.
func AdminAuth(apiKey string, tokens *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				key := r.Header.Get("X-Admin-Key")
				if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			if tokens != nil {
				if cookie, err := r.Cookie(auth.AccessCookie); err == nil {
					if _, err := tokens.Verify(cookie.Value, auth.TokenAccess); err == nil {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		})
	}
}
