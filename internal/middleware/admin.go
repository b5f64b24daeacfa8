package middleware

import (
	"encoding/json"
	"net/http"
)

// RequireAdmin guards routes behind the is_admin claim. It must run after
// AuthJWT so the identity is already in the context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.IsAdmin {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":   "forbidden",
				"message": "admin only",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
