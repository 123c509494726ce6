package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost      = 12
	SecretByteCount = 24
)

// NewDeviceSecret generates the enrollment secret handed to a device
// operator at registration.
func NewDeviceSecret() (string, error) {
	buf := make([]byte, SecretByteCount)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckSecret(hashedSecret string, secret string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
	return err == nil
}
