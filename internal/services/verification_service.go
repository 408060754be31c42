package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"ballouchi/internal/logger"
	"ballouchi/internal/models"
)

const compensationTimeout = 5 * time.Second

// VerificationService drives an account through
// UNREGISTERED -> PENDING_VERIFICATION -> VERIFIED.
type VerificationService struct {
	base
}

func NewVerificationService(d Deps, o Options) *VerificationService {
	return &VerificationService{base: newBase(d, o)}
}

// Signup stages the identity, then commits the record. If the record cannot
// be written the identity is removed again. Mail, event and admin alert
// follow the commit and never fail the signup.
func (s *VerificationService) Signup(ctx context.Context, email, username, password string) (*models.User, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	switch {
	case email == "":
		return nil, invalidArgument("email is required")
	case username == "":
		return nil, invalidArgument("username is required")
	case password == "":
		return nil, invalidArgument("password is required")
	case len(password) > maxPasswordBytes:
		return nil, invalidArgument("password must be at most 72 bytes")
	}

	unlock, err := s.lock(ctx, email)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.getUser(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.deps.Hasher.HashPassword(password)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			return nil, err
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := s.opts.NewCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	expiresAt := now.Add(s.opts.CodeTTL)

	identity, err := s.createIdentity(ctx, email, username)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:                     email,
		UID:                       identity.UID,
		Username:                  username,
		PasswordHash:              hash,
		IsVerified:                false,
		AccountType:               models.AccountTypeClient,
		VerificationCode:          &code,
		VerificationCodeExpiresAt: &expiresAt,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := s.createRecord(ctx, user); err != nil {
		s.compensateIdentity(ctx, identity.UID, email)
		return nil, err
	}

	s.log(ctx).Info("signup committed", zap.String("email", logger.MaskEmail(email)), zap.String("uid", user.UID))

	if err := s.sendCode(ctx, email, username, code); err != nil {
		// the account exists; the user recovers through resend
		s.log(ctx).Warn("verification email not sent", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
	}
	s.publish(ctx, models.EventUserRegistered, user)
	s.notify(ctx, fmt.Sprintf("New signup: <b>%s</b> (%s)", html.EscapeString(username), html.EscapeString(email)))
	return user, nil
}

// Verify consumes the pending code. A wrong code leaves the record as it
// was. An expired code is dropped, so only Resend can start over.
func (s *VerificationService) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if email == "" {
		return invalidArgument("email is required")
	}

	unlock, err := s.lock(ctx, email)
	if err != nil {
		return err
	}
	defer unlock()

	u, err := s.getUser(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified || u.VerificationCode == nil {
		return ErrNoPendingVerification
	}
	stored := *u.VerificationCode
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}

	now := s.now()
	if u.VerificationCodeExpiresAt == nil || now.After(*u.VerificationCodeExpiresAt) {
		cctx, cancel := s.bounded(ctx)
		defer cancel()
		if err := s.deps.Users.ClearVerificationCode(cctx, email, stored); err != nil {
			s.log(ctx).Warn("clear expired code failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
		return ErrCodeExpired
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Users.MarkVerified(cctx, email, stored, now); err != nil {
		return storeErr("mark verified", err)
	}

	u.IsVerified = true
	u.VerificationCode = nil
	u.VerificationCodeExpiresAt = nil
	u.VerifiedAt = &now
	s.log(ctx).Info("email verified", zap.String("email", logger.MaskEmail(email)))
	s.publish(ctx, models.EventUserVerified, u)
	return nil
}

// Resend issues a fresh code to any unverified record, including one whose
// code was dropped on expiry. The previous code stops working once the new
// one has been mailed.
func (s *VerificationService) Resend(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return invalidArgument("email is required")
	}

	unlock, err := s.lock(ctx, email)
	if err != nil {
		return err
	}
	defer unlock()

	u, err := s.getUser(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return ErrNoPendingVerification
	}

	code, err := s.freshCode(u.VerificationCode)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.opts.CodeTTL)

	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Users.ReplaceVerificationCode(cctx, email, u.VerificationCode, code, expiresAt); err != nil {
		return storeErr("replace verification code", err)
	}

	if err := s.sendCode(ctx, email, u.Username, code); err != nil {
		s.restoreCode(ctx, email, code, u)
		return upstream("send verification email", err)
	}
	s.log(ctx).Info("verification code resent", zap.String("email", logger.MaskEmail(email)))
	return nil
}

// restoreCode puts back the code the user already holds when the new one
// never reached them. It only applies while the unsent code is still stored.
func (s *VerificationService) restoreCode(ctx context.Context, email, unsent string, prev *models.User) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var err error
	if prev.VerificationCode != nil && prev.VerificationCodeExpiresAt != nil {
		err = s.deps.Users.ReplaceVerificationCode(cctx, email, &unsent, *prev.VerificationCode, *prev.VerificationCodeExpiresAt)
	} else {
		err = s.deps.Users.ClearVerificationCode(cctx, email, unsent)
	}
	if err != nil {
		s.log(ctx).Warn("restore verification code failed",
			zap.String("email", logger.MaskEmail(email)), zap.Error(err))
	}
}

// freshCode never hands back the code being replaced.
func (s *VerificationService) freshCode(prev *string) (string, error) {
	for i := 0; i < 8; i++ {
		code, err := s.opts.NewCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		if prev == nil || code != *prev {
			return code, nil
		}
	}
	return "", errors.New("generate code: no distinct code")
}

func (s *VerificationService) createIdentity(ctx context.Context, email, username string) (*models.Identity, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	identity, err := s.deps.Identities.Create(cctx, email, username)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, upstream("create identity", err)
	}
	return identity, nil
}

func (s *VerificationService) createRecord(ctx context.Context, user *models.User) error {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	return storeErr("create user record", s.deps.Users.Create(cctx, user))
}

// compensateIdentity runs even when the request is gone.
func (s *VerificationService) compensateIdentity(ctx context.Context, uid, email string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.deps.Identities.Delete(cctx, uid); err != nil && !errors.Is(err, ErrNotFound) {
		s.log(ctx).Error("identity compensation failed, orphaned identity",
			zap.String("uid", uid),
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		return
	}
	s.log(ctx).Info("identity compensated", zap.String("uid", uid))
}

func (s *VerificationService) sendCode(ctx context.Context, email, username, code string) error {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.deps.Mailer.SendVerificationEmail(cctx, email, username, code)
}
