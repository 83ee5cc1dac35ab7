package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"strings"
)

// Encryptor seals small secrets (SMTP passwords, webhook secrets) with
// AES-256-GCM. The blob layout is nonce || ciphertext.
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptorFromString(key string) (*Encryptor, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("encryption key is empty")
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

func (e *Encryptor) EncryptToBlob(plain []byte) ([]byte, error) {
	if e == nil || e.aead == nil {
		return nil, errors.New("encryptor not configured")
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plain, nil), nil
}

func (e *Encryptor) DecryptBlob(blob []byte) ([]byte, error) {
	if e == nil || e.aead == nil {
		return nil, errors.New("encryptor not configured")
	}
	ns := e.aead.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("cipher blob too short")
	}
	return e.aead.Open(nil, blob[:ns], blob[ns:], nil)
}
