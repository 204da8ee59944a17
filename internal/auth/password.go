package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hashing cost for the admin credential. Login is rare here, so the
// default work factor is plenty.
const bcryptCost = bcrypt.DefaultCost

// HashPassword produces a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks password against a stored bcrypt hash.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
