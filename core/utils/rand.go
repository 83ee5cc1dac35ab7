package utils

import (
	"crypto/rand"
	"encoding/base64"
)

func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandString returns a URL-safe random string of length n.
func RandString(n int) (string, error) {
	if n <= 0 {
		n = 1
	}
	raw, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(raw)
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}
