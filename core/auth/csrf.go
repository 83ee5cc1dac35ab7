package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// GenerateCSRF derives a per-session CSRF token from the configured key, so
// the token survives process restarts without being stored anywhere except
// the session row itself.
func GenerateCSRF(key, sessionID string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("csrf key is empty")
	}
	m := hmac.New(sha256.New, []byte(key))
	if _, err := m.Write([]byte(sessionID)); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil)), nil
}
