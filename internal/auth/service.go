package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials is returned when login credentials don't match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates the admin API. The server carries a single admin
// credential from configuration; the password is hashed at startup so the
// plaintext never sticks around in memory.
type Service struct {
	jwt       *JWTConfig
	adminUser string
	adminHash string
}

// NewService builds the auth service. An empty password disables login
// entirely (every attempt fails), which is the safe default for servers
// that never set one.
func NewService(jwtCfg *JWTConfig, adminUser, adminPassword string) (*Service, error) {
	s := &Service{jwt: jwtCfg, adminUser: adminUser}
	if adminPassword != "" {
		hash, err := HashPassword(adminPassword)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		s.adminHash = hash
	}
	return s, nil
}

// Login verifies the credentials and returns a signed token.
func (s *Service) Login(username, password string) (string, error) {
	if s.adminHash == "" || username != s.adminUser {
		return "", ErrInvalidCredentials
	}
	if err := ComparePassword(s.adminHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return GenerateToken(s.jwt, username, true)
}

// ValidateToken checks a bearer token and returns its claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return ValidateToken(s.jwt, token)
}
