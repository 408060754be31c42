package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballouchi/internal/models"
)

func seedPending(t *testing.T, repo UserRepository, email, code string) {
	t.Helper()
	exp := time.Now().Add(15 * time.Minute).UTC()
	require.NoError(t, repo.Create(context.Background(), &models.User{
		Email: email, UID: "uid-" + email, Username: "u", PasswordHash: "h",
		VerificationCode: &code, VerificationCodeExpiresAt: &exp,
		AccountType: models.AccountTypeClient,
	}))
}

func TestMemoryUsers_CreateDuplicate(t *testing.T) {
	repo := NewMemoryStore().Users()
	seedPending(t, repo, "a@x.com", "1234")

	err := repo.Create(context.Background(), &models.User{Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryUsers_ReturnsCopies(t *testing.T) {
	repo := NewMemoryStore().Users()
	seedPending(t, repo, "a@x.com", "1234")

	u, err := repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	*u.VerificationCode = "9999"
	u.IsVerified = true

	again, err := repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "1234", *again.VerificationCode)
	assert.False(t, again.IsVerified)
}

func TestMemoryUsers_ConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Users()
	seedPending(t, repo, "a@x.com", "1234")

	stale := "0000"
	assert.ErrorIs(t, repo.ReplaceVerificationCode(ctx, "a@x.com", &stale, "5555", time.Now()), ErrStale)
	assert.ErrorIs(t, repo.MarkVerified(ctx, "a@x.com", "0000", time.Now()), ErrStale)

	prev := "1234"
	require.NoError(t, repo.ReplaceVerificationCode(ctx, "a@x.com", &prev, "5555", time.Now().Add(time.Minute)))
	assert.ErrorIs(t, repo.MarkVerified(ctx, "a@x.com", "1234", time.Now()), ErrStale)

	at := time.Now().UTC()
	require.NoError(t, repo.MarkVerified(ctx, "a@x.com", "5555", at))

	u, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Nil(t, u.VerificationCode)
	assert.Nil(t, u.VerificationCodeExpiresAt)
	require.NotNil(t, u.VerifiedAt)

	// verified records reject every code mutation
	assert.ErrorIs(t, repo.ReplaceVerificationCode(ctx, "a@x.com", nil, "7777", time.Now()), ErrStale)
	assert.ErrorIs(t, repo.MarkVerified(ctx, "a@x.com", "5555", time.Now()), ErrStale)
}

func TestMemoryUsers_ClearThenReplaceFromNil(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Users()
	seedPending(t, repo, "a@x.com", "1234")

	require.NoError(t, repo.ClearVerificationCode(ctx, "a@x.com", "1234"))
	u, _ := repo.GetByEmail(ctx, "a@x.com")
	assert.False(t, u.HasPendingCode())
	assert.False(t, u.IsVerified)

	require.NoError(t, repo.ReplaceVerificationCode(ctx, "a@x.com", nil, "4321", time.Now().Add(time.Minute)))
	u, _ = repo.GetByEmail(ctx, "a@x.com")
	assert.True(t, u.HasPendingCode())
}

func TestMemoryUsers_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Users()

	_, err := repo.GetByEmail(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdateAccountType(ctx, "ghost@x.com", models.AccountTypeProfessional), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateLocation(ctx, "ghost@x.com", models.Location{}), ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "ghost@x.com"), ErrNotFound)
}

func TestMemoryIdentities_UniqueEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Identities()

	require.NoError(t, repo.Create(ctx, &models.Identity{UID: "u1", Email: "a@x.com"}))
	assert.ErrorIs(t, repo.Create(ctx, &models.Identity{UID: "u2", Email: "a@x.com"}), ErrDuplicate)

	id, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UID)

	require.NoError(t, repo.Delete(ctx, "u1"))
	assert.ErrorIs(t, repo.Delete(ctx, "u1"), ErrNotFound)
}

func TestMemoryMerchants_DeletedWithUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPending(t, store.Users(), "a@x.com", "1234")

	require.NoError(t, store.Merchants().Create(ctx, &models.Merchant{ID: "m1", Email: "a@x.com"}))
	require.NoError(t, store.Merchants().Create(ctx, &models.Merchant{ID: "m2", Email: "a@x.com", CreatedAt: time.Now()}))
	list, err := store.Merchants().ListByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Users().Delete(ctx, "a@x.com"))
	list, err = store.Merchants().ListByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}
