package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"

	"go.uber.org/zap"

	"ballouchi/internal/logger"
	"ballouchi/internal/models"
)

type AccountService struct {
	base
	blobs BlobDeleter
}

// BlobDeleter removes merchant documents when their owner is deleted.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

func NewAccountService(d Deps, o Options, blobs BlobDeleter) *AccountService {
	return &AccountService{base: newBase(d, o), blobs: blobs}
}

func (s *AccountService) GetUser(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, invalidArgument("email is required")
	}
	return s.getUser(ctx, email)
}

// SetAccountType rejects unknown types before looking the record up.
func (s *AccountService) SetAccountType(ctx context.Context, email, accountType string) error {
	at, ok := models.ParseAccountType(accountType)
	if !ok {
		return invalidArgument("invalid account type")
	}
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
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Users.UpdateAccountType(cctx, email, at); err != nil {
		return storeErr("update account type", err)
	}

	prev := u.AccountType
	u.AccountType = at
	s.log(ctx).Info("account type changed",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("from", string(prev)),
		zap.String("to", string(at)),
	)
	if prev != at {
		s.publish(ctx, models.EventUserAccountTypeChanged, u)
	}
	return nil
}

func (s *AccountService) UpdateLocation(ctx context.Context, email string, lat, lng float64) error {
	email = normalizeEmail(email)
	switch {
	case email == "":
		return invalidArgument("email is required")
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return invalidArgument("latitude must be between -90 and 90")
	case math.IsNaN(lng) || lng < -180 || lng > 180:
		return invalidArgument("longitude must be between -180 and 180")
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Users.UpdateLocation(cctx, email, models.Location{Latitude: lat, Longitude: lng}); err != nil {
		return storeErr("update location", err)
	}
	return nil
}

// DeleteUser removes the identity, the merchant documents and their blobs,
// then the record itself. A missing identity is not an error.
func (s *AccountService) DeleteUser(ctx context.Context, email string) error {
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

	if err := s.deleteIdentity(ctx, email, u.UID); err != nil {
		return err
	}
	if err := s.deleteMerchants(ctx, email); err != nil {
		return err
	}

	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Users.Delete(cctx, email); err != nil {
		return storeErr("delete user", err)
	}

	s.log(ctx).Info("user deleted", zap.String("email", logger.MaskEmail(email)), zap.String("uid", u.UID))
	s.publish(ctx, models.EventUserDeleted, u)
	s.notify(ctx, fmt.Sprintf("User deleted: %s", html.EscapeString(email)))
	return nil
}

// deleteIdentity resolves the identity by email, falling back on the uid
// stored in the record.
func (s *AccountService) deleteIdentity(ctx context.Context, email, uid string) error {
	lctx, lcancel := s.bounded(ctx)
	identity, err := s.deps.Identities.LookupByEmail(lctx, email)
	lcancel()
	switch {
	case err == nil:
		uid = identity.UID
	case !errors.Is(err, ErrNotFound):
		return upstream("lookup identity", err)
	}
	if uid == "" {
		return nil
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Identities.Delete(cctx, uid); err != nil && !errors.Is(err, ErrNotFound) {
		return upstream("delete identity", err)
	}
	return nil
}

func (s *AccountService) deleteMerchants(ctx context.Context, email string) error {
	if s.deps.Merchants == nil {
		return nil
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	merchants, err := s.deps.Merchants.ListByEmail(cctx, email)
	if err != nil {
		return upstream("list merchants", err)
	}
	if s.blobs != nil {
		for _, m := range merchants {
			bctx, bcancel := s.bounded(ctx)
			err := s.blobs.Delete(bctx, m.FileKey)
			bcancel()
			if err != nil {
				return upstream("delete merchant file", err)
			}
		}
	}
	dctx, dcancel := s.bounded(ctx)
	defer dcancel()
	if err := s.deps.Merchants.DeleteByEmail(dctx, email); err != nil {
		return upstream("delete merchants", err)
	}
	return nil
}
