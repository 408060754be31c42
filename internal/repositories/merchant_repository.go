package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"ballouchi/internal/models"
)

type MerchantRepository interface {
	Create(ctx context.Context, m *models.Merchant) error
	ListByEmail(ctx context.Context, email string) ([]*models.Merchant, error)
	DeleteByEmail(ctx context.Context, email string) error
}

type merchantRepository struct {
	DB *sql.DB
}

func NewMerchantRepository(db *sql.DB) MerchantRepository {
	return &merchantRepository{DB: db}
}

func (r *merchantRepository) Create(ctx context.Context, m *models.Merchant) error {
	const q = `
		INSERT INTO merchants (id, email, business_name, file_key, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.DB.ExecContext(ctx, q, m.ID, m.Email, m.BusinessName, m.FileKey, m.FileURL, m.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("merchants create: %w", err)
	}
	return nil
}

func (r *merchantRepository) ListByEmail(ctx context.Context, email string) ([]*models.Merchant, error) {
	const q = `
		SELECT id, email, business_name, file_key, file_url, created_at
		FROM merchants
		WHERE email = $1
		ORDER BY created_at
	`
	rows, err := r.DB.QueryContext(ctx, q, email)
	if err != nil {
		return nil, fmt.Errorf("merchants list: %w", err)
	}
	defer rows.Close()

	var res []*models.Merchant
	for rows.Next() {
		m := &models.Merchant{}
		if err := rows.Scan(&m.ID, &m.Email, &m.BusinessName, &m.FileKey, &m.FileURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("merchants scan: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *merchantRepository) DeleteByEmail(ctx context.Context, email string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM merchants WHERE email=$1`, email); err != nil {
		return fmt.Errorf("merchants delete: %w", err)
	}
	return nil
}
