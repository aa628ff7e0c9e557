package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password with a fresh random salt and returns both.
func HashPassword(password string) (hashedPassword string, salt string, err error) {
	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", err
	}
	salt = base64.StdEncoding.EncodeToString(saltBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(password+salt), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	return string(hash), salt, nil
}

// VerifyPassword checks the provided password against the stored hash.
func VerifyPassword(hashedPassword, inputPassword, salt string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(inputPassword+salt))
}

// ExtractUsernameFromEmail returns the local part of an email address.
func ExtractUsernameFromEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
