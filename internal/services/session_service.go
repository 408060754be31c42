package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ballouchi/internal/authz"
	"ballouchi/internal/logger"
	"ballouchi/internal/models"
)

type SignInResult struct {
	Token     string
	ExpiresAt time.Time
	User      models.Summary
}

type SessionService struct {
	base
	tokens *authz.TokenIssuer
}

func NewSessionService(d Deps, o Options, tokens *authz.TokenIssuer) *SessionService {
	return &SessionService{base: newBase(d, o), tokens: tokens}
}

// SignIn checks verification before the password, so an unverified
// account never reveals whether a password was right.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalidArgument("email is required")
	}

	u, err := s.getUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.IsVerified {
		return nil, ErrUnverified
	}
	if !s.deps.Hasher.ComparePassword(u.PasswordHash, password) {
		s.log(ctx).Info("sign in rejected", zap.String("email", logger.MaskEmail(email)))
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.UID, u.Email, u.AccountType)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &SignInResult{Token: token, ExpiresAt: exp, User: u.Summary()}, nil
}
