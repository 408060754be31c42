package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ballouchi/internal/models"
)

type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	Delete(ctx context.Context, uid string) error
}

type identityRepository struct {
	DB *sql.DB
}

func NewIdentityRepository(db *sql.DB) IdentityRepository {
	return &identityRepository{DB: db}
}

func (r *identityRepository) Create(ctx context.Context, identity *models.Identity) error {
	const q = `
		INSERT INTO identities (uid, email, display_name, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.DB.ExecContext(ctx, q, identity.UID, identity.Email, identity.DisplayName, identity.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("identities create: %w", err)
	}
	return nil
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	const q = `SELECT uid, email, display_name, created_at FROM identities WHERE email = $1`
	var id models.Identity
	err := r.DB.QueryRowContext(ctx, q, email).Scan(&id.UID, &id.Email, &id.DisplayName, &id.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identities get by email: %w", err)
	}
	return &id, nil
}

func (r *identityRepository) Delete(ctx context.Context, uid string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM identities WHERE uid=$1`, uid)
	if err != nil {
		return fmt.Errorf("identities delete: %w", err)
	}
	return expectOne(res, ErrNotFound)
}
