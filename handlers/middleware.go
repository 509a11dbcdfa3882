package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuth creates a middleware that guards curation endpoints with HTTP basic
// auth against a bcrypt password hash. an empty hash leaves the endpoints open.
func AdminAuth(user, passwordHash string) func(http.Handler) http.Handler {
	if passwordHash == "" {
		log.Println("Warning: ADMIN_PASSWORD_HASH is not set, curation endpoints are unauthenticated")
		return func(next http.Handler) http.Handler { return next }
	}
	hash := []byte(passwordHash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, "authorization required")
				return
			}
			userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
			passErr := bcrypt.CompareHashAndPassword(hash, []byte(p))
			if !userOK || passErr != nil {
				unauthorized(w, "invalid credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="faceattend", charset="UTF-8"`)
	WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, detail)
}

// HashPassword produces the bcrypt hash expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
