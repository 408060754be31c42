package services

import (
	"context"
	"fmt"
	"html"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ballouchi/internal/authz"
	"ballouchi/internal/logger"
	"ballouchi/internal/models"
	"ballouchi/internal/storage"
)

// MerchantUpload is the business document sent with a merchant registration.
type MerchantUpload struct {
	BusinessName string
	FileName     string
	ContentType  string
	Size         int64
	Body         io.Reader
}

type MerchantService struct {
	base
	blobs storage.Store
}

func NewMerchantService(d Deps, o Options, blobs storage.Store) *MerchantService {
	return &MerchantService{base: newBase(d, o), blobs: blobs}
}

// RegisterMerchant stores the document and records it in the merchant
// collection. Only verified professional accounts may register.
func (s *MerchantService) RegisterMerchant(ctx context.Context, email string, in MerchantUpload) (*models.Merchant, error) {
	email = normalizeEmail(email)
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	switch {
	case email == "":
		return nil, invalidArgument("email is required")
	case in.BusinessName == "":
		return nil, invalidArgument("businessName is required")
	case in.Body == nil:
		return nil, invalidArgument("file is required")
	}

	u, err := s.getUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if !authz.CanRegisterMerchant(u) {
		return nil, fmt.Errorf("%w: merchant registration requires a verified professional account", ErrForbidden)
	}

	now := s.now()
	id := uuid.NewString()
	key := fmt.Sprintf("merchants/%s/%s/%s-%s", email, now.Format("2006/01/02"), id, safeFileName(in.FileName))

	pctx, pcancel := s.bounded(ctx)
	url, err := s.blobs.Put(pctx, key, in.ContentType, in.Body, in.Size)
	pcancel()
	if err != nil {
		return nil, upstream("upload merchant file", err)
	}

	m := &models.Merchant{
		ID:           id,
		Email:        email,
		BusinessName: in.BusinessName,
		FileKey:      key,
		FileURL:      url,
		CreatedAt:    now,
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.deps.Merchants.Create(cctx, m); err != nil {
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer dcancel()
		if derr := s.blobs.Delete(dctx, key); derr != nil {
			s.log(ctx).Error("orphaned merchant file", zap.String("key", key), zap.Error(derr))
		}
		return nil, storeErr("create merchant", err)
	}

	s.log(ctx).Info("merchant registered", zap.String("email", logger.MaskEmail(email)), zap.String("merchant_id", id))
	s.publish(ctx, models.EventMerchantRegistered, u)
	s.notify(ctx, fmt.Sprintf("New merchant: <b>%s</b> (%s)", html.EscapeString(in.BusinessName), html.EscapeString(email)))
	return m, nil
}

// safeFileName keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with '-'.
func safeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
