package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// GenerateToken returns a random hex token built from the requested number of bytes.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}
