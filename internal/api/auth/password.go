// Package auth checks the admin credentials guarding the dashboard API.
package auth

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the single admin account allowed into the dashboard API.
type Credentials struct {
	Username     string
	PasswordHash string
}

// HashPassword wraps bcrypt.GenerateFromPassword for the admin password hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword wraps bcrypt.CompareHashAndPassword.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Configured reports whether a password hash has been set.
func (c Credentials) Configured() bool {
	return c.PasswordHash != ""
}

// CheckBasicAuth returns the presented username and whether it matches the
// admin account.
func (c Credentials) CheckBasicAuth(r *http.Request) (string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok || !c.Configured() {
		return username, false
	}
	userMatches := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passwordMatches := VerifyPassword(c.PasswordHash, password)
	return username, userMatches && passwordMatches
}
