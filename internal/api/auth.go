package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// requireToken guards a handler with a bearer token check. The configured
// value is a bcrypt hash so the plaintext token never lives in config files.
// An empty hash disables the check.
func requireToken(tokenHash string, next http.HandlerFunc) http.HandlerFunc {
	if tokenHash == "" {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			log.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Rejected request with invalid token")
			writeJSONError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// Some automation platforms can only set a custom header.
	return strings.TrimSpace(r.Header.Get("X-Webhook-Token"))
}
