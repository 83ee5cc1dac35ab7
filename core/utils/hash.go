package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
