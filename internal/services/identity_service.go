package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ballouchi/internal/models"
	"ballouchi/internal/repositories"
)

// IdentityDirectory owns the credentials-side account, separate from the
// user record.
type IdentityDirectory interface {
	Create(ctx context.Context, email, displayName string) (*models.Identity, error)
	LookupByEmail(ctx context.Context, email string) (*models.Identity, error)
	Delete(ctx context.Context, uid string) error
}

type identityService struct {
	repo repositories.IdentityRepository
	now  func() time.Time
}

func NewIdentityService(repo repositories.IdentityRepository) IdentityDirectory {
	return &identityService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *identityService) Create(ctx context.Context, email, displayName string) (*models.Identity, error) {
	identity := &models.Identity{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return identity, nil
}

func (s *identityService) LookupByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	return identity, err
}

func (s *identityService) Delete(ctx context.Context, uid string) error {
	err := s.repo.Delete(ctx, uid)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
