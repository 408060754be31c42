package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ballouchi/internal/models"
)

// UserRepository stores one record per email. Every mutation of the
// verification fields is conditional on the prior code so that concurrent
// writers cannot silently overwrite each other.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ReplaceVerificationCode sets a fresh code and expiry on an unverified
	// record whose current code equals prevCode (nil means "no code").
	ReplaceVerificationCode(ctx context.Context, email string, prevCode *string, code string, expiresAt time.Time) error
	// ClearVerificationCode drops an expired code, leaving the record unverified.
	ClearVerificationCode(ctx context.Context, email, prevCode string) error
	// MarkVerified consumes code and flips is_verified.
	MarkVerified(ctx context.Context, email, code string, at time.Time) error

	UpdateAccountType(ctx context.Context, email string, accountType models.AccountType) error
	UpdateLocation(ctx context.Context, email string, loc models.Location) error
	Delete(ctx context.Context, email string) error
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (
			email, uid, username, password_hash, is_verified,
			verification_code, verification_code_expires_at,
			account_type, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := r.DB.ExecContext(ctx, q,
		user.Email,
		user.UID,
		user.Username,
		user.PasswordHash,
		user.IsVerified,
		nullString(user.VerificationCode),
		nullTime(user.VerificationCodeExpiresAt),
		string(user.AccountType),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("users create: %w", err)
	}
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT
			email, uid, username, password_hash, is_verified,
			verification_code, verification_code_expires_at,
			account_type, latitude, longitude,
			created_at, updated_at, verified_at
		FROM users
		WHERE email = $1
	`
	u := &models.User{}
	var (
		code        sql.NullString
		codeExpires sql.NullTime
		accountType string
		lat, lng    sql.NullFloat64
		verifiedAt  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, email).Scan(
		&u.Email, &u.UID, &u.Username, &u.PasswordHash, &u.IsVerified,
		&code, &codeExpires,
		&accountType, &lat, &lng,
		&u.CreatedAt, &u.UpdatedAt, &verifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users get by email: %w", err)
	}
	u.AccountType = models.AccountType(accountType)
	if code.Valid {
		s := code.String
		u.VerificationCode = &s
	}
	if codeExpires.Valid {
		t := codeExpires.Time
		u.VerificationCodeExpiresAt = &t
	}
	if lat.Valid && lng.Valid {
		u.Location = &models.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	return u, nil
}

func (r *userRepository) ReplaceVerificationCode(ctx context.Context, email string, prevCode *string, code string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET verification_code=$2, verification_code_expires_at=$3, updated_at=NOW()
		WHERE email=$1 AND is_verified=FALSE AND verification_code IS NOT DISTINCT FROM $4
	`
	res, err := r.DB.ExecContext(ctx, q, email, code, expiresAt, nullString(prevCode))
	if err != nil {
		return fmt.Errorf("users replace verification code: %w", err)
	}
	return expectOne(res, ErrStale)
}

func (r *userRepository) ClearVerificationCode(ctx context.Context, email, prevCode string) error {
	const q = `
		UPDATE users
		SET verification_code=NULL, verification_code_expires_at=NULL, updated_at=NOW()
		WHERE email=$1 AND is_verified=FALSE AND verification_code=$2
	`
	res, err := r.DB.ExecContext(ctx, q, email, prevCode)
	if err != nil {
		return fmt.Errorf("users clear verification code: %w", err)
	}
	return expectOne(res, ErrStale)
}

func (r *userRepository) MarkVerified(ctx context.Context, email, code string, at time.Time) error {
	const q = `
		UPDATE users
		SET is_verified=TRUE, verification_code=NULL, verification_code_expires_at=NULL,
			verified_at=$3, updated_at=$3
		WHERE email=$1 AND is_verified=FALSE AND verification_code=$2
	`
	res, err := r.DB.ExecContext(ctx, q, email, code, at)
	if err != nil {
		return fmt.Errorf("users mark verified: %w", err)
	}
	return expectOne(res, ErrStale)
}

func (r *userRepository) UpdateAccountType(ctx context.Context, email string, accountType models.AccountType) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET account_type=$2, updated_at=NOW() WHERE email=$1`,
		email, string(accountType),
	)
	if err != nil {
		return fmt.Errorf("users update account type: %w", err)
	}
	return expectOne(res, ErrNotFound)
}

func (r *userRepository) UpdateLocation(ctx context.Context, email string, loc models.Location) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET latitude=$2, longitude=$3, updated_at=NOW() WHERE email=$1`,
		email, loc.Latitude, loc.Longitude,
	)
	if err != nil {
		return fmt.Errorf("users update location: %w", err)
	}
	return expectOne(res, ErrNotFound)
}

func (r *userRepository) Delete(ctx context.Context, email string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE email=$1`, email)
	if err != nil {
		return fmt.Errorf("users delete: %w", err)
	}
	return expectOne(res, ErrNotFound)
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
