package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only looks at the first 72 bytes and rejects anything longer.
const maxPasswordBytes = 72

type AuthService interface {
	HashPassword(password string) (string, error)
	// ComparePassword reports whether password matches hash. The hash is
	// never decoded or shown, only compared.
	ComparePassword(hash, password string) bool
}

type authService struct {
	cost int
}

// NewAuthService uses bcrypt.DefaultCost when cost is zero.
func NewAuthService(cost int) AuthService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &authService{cost: cost}
}

func (s *authService) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", invalidArgument("password must be at most 72 bytes")
	}
	if err != nil {
		return "", fmt.Errorf("bcrypt generate: %w", err)
	}
	return string(b), nil
}

func (s *authService) ComparePassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
