package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// AdminAuth guards the provisioning endpoints (account upserts, token
// minting) with a single static admin key. The key is presented either as
// "Authorization: Bearer <key>" or in the X-Admin-Key header. An empty
// configured key disables the guard; that is only sensible in local
// development.
func AdminAuth(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := adminKeyFrom(r)
			if presented == "" {
				jsonError(w, http.StatusUnauthorized, "missing admin key")
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(presented), []byte(adminKey)) != 1 {
				jsonError(w, http.StatusUnauthorized, "invalid admin key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func adminKeyFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Key"))
}

// jsonError writes the same {"error": msg} body the REST handlers use.
func jsonError(w http.ResponseWriter, status int, msg string) {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
