package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"blik/core/utils"
)

type PasswordHash struct {
	Hash string
	Salt string
}

// prehash folds the per-user salt and the process-wide pepper into a fixed
// 64-byte digest so bcrypt's 72-byte input limit never truncates long
// passwords.
func prehash(password, pepper, salt string) []byte {
	sum := sha256.Sum256([]byte(salt + password + pepper))
	return []byte(hex.EncodeToString(sum[:]))
}

func HashPassword(password, pepper string) (PasswordHash, error) {
	salt, err := utils.RandString(16)
	if err != nil {
		return PasswordHash{}, err
	}
	raw, err := bcrypt.GenerateFromPassword(prehash(password, pepper, salt), bcrypt.DefaultCost)
	if err != nil {
		return PasswordHash{}, err
	}
	return PasswordHash{Hash: string(raw), Salt: salt}, nil
}

func MustHashPassword(password, pepper string) PasswordHash {
	ph, err := HashPassword(password, pepper)
	if err != nil {
		panic("auth: hash password: " + err.Error())
	}
	return ph
}

func VerifyPassword(password, pepper string, ph PasswordHash) (bool, error) {
	if ph.Hash == "" {
		return false, errors.New("empty password hash")
	}
	err := bcrypt.CompareHashAndPassword([]byte(ph.Hash), prehash(password, pepper, ph.Salt))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
