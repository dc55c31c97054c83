package middleware

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
)

// AdminAuthConfig holds the credentials for the admin routes. PasswordHash
// is a bcrypt hash, as printed by cmd/hashpw.
type AdminAuthConfig struct {
	Username     string
	PasswordHash string
	Realm        string
}

// AdminAuth protects a router with HTTP Basic auth. With no password hash
// configured every request is refused, so the admin surface is closed by
// default.
func AdminAuth(config AdminAuthConfig) func(http.Handler) http.Handler {
	if config.Realm == "" {
		config.Realm = "challenge-media admin"
	}
	if config.PasswordHash == "" {
		logging.Warn("ADMIN_PASSWORD_HASH is not set; admin endpoints are disabled")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.PasswordHash == "" {
				metrics.AuthAttempts.WithLabelValues("disabled").Inc()
				http.Error(w, "admin endpoints are disabled", http.StatusForbidden)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !checkCredentials(config, user, pass) {
				if ok {
					metrics.AuthAttempts.WithLabelValues("failure").Inc()
					logging.Warn("Admin authentication failed for user %q from %s", sanitizeLogField(user), sanitizeLogField(getClientIP(r)))
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="`+config.Realm+`", charset="UTF-8"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			metrics.AuthAttempts.WithLabelValues("success").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func checkCredentials(config AdminAuthConfig, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(config.Username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword([]byte(config.PasswordHash), []byte(pass)) == nil
	return userOK && passOK
}
