package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	xlog "github.com/bobarin/beatreel/internal/log"
)

// APIKeyAuth rejects requests that do not carry apiKey in X-API-Key or
// Authorization: Bearer <key>.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	logger := xlog.WithComponent("api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "Missing API key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				logger.Warn().Str("path", r.URL.Path).Msg("rejected request with invalid API key")
				respondError(w, http.StatusForbidden, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
