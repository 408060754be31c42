package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ballouchi/internal/models"
	"ballouchi/internal/repositories"
)

func TestSignup_CreatesPendingRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, u.UID)

	stored, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingVerification, stored.State())
	require.NotNil(t, stored.VerificationCode)
	assert.Len(t, *stored.VerificationCode, 4)
	require.NotNil(t, stored.VerificationCodeExpiresAt)
	assert.True(t, stored.VerificationCodeExpiresAt.After(h.clock.Now()))
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *stored.VerificationCodeExpiresAt)
	assert.Equal(t, models.AccountTypeClient, stored.AccountType)
	assert.NotEqual(t, "pw1", stored.PasswordHash)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, *stored.VerificationCode, h.mailer.sent[0].code)
	assert.Equal(t, []models.EventType{models.EventUserRegistered}, h.events.types())
	assert.Len(t, h.admins.texts, 1)

	identity, err := h.store.Identities().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.UID, identity.UID)
}

func TestSignup_NormalizesEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.verify.Signup(context.Background(), "  Alice@X.com ", "alice", "pw1")
	require.NoError(t, err)

	_, err = h.store.Users().GetByEmail(context.Background(), "alice@x.com")
	assert.NoError(t, err)

	_, err = h.verify.Signup(context.Background(), "alice@x.com", "alice2", "pw2")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSignup_DuplicateConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	first, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	_, err = h.verify.Signup(ctx, "a@x.com", "mallory", "pw2")
	assert.ErrorIs(t, err, ErrConflict)

	again, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, h.mailer.sent, 1)
}

func TestSignup_MissingFields(t *testing.T) {
	h := newHarness(t)
	for _, tc := range [][3]string{
		{"", "alice", "pw"},
		{"a@x.com", " ", "pw"},
		{"a@x.com", "alice", ""},
	} {
		_, err := h.verify.Signup(context.Background(), tc[0], tc[1], tc[2])
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestSignup_PasswordTooLong(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.verify.Signup(ctx, "long@x.com", "bob", strings.Repeat("p", 73))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.store.Users().GetByEmail(ctx, "long@x.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = h.store.Identities().GetByEmail(ctx, "long@x.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Empty(t, h.mailer.lastCode())

	_, err = h.verify.Signup(ctx, "long@x.com", "bob", strings.Repeat("p", 72))
	assert.NoError(t, err)
}

func TestHashPassword_TooLongIsInvalidArgument(t *testing.T) {
	_, err := NewAuthService(bcrypt.MinCost).HashPassword(strings.Repeat("p", 80))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSignup_CompensatesIdentityWhenRecordFails(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.deps.Users = &failingUsers{UserRepository: h.store.Users(), createErr: errors.New("store down")}
	})
	ctx := context.Background()

	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = h.store.Identities().GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = h.store.Users().GetByEmail(ctx, "a@x.com")
	assert.Error(t, err)
	assert.Empty(t, h.mailer.sent)
	assert.Empty(t, h.events.types())
}

func TestSignup_IdentityAlreadyTaken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.deps.Identities.Create(ctx, "a@x.com", "someone")
	require.NoError(t, err)

	_, err = h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = h.store.Users().GetByEmail(ctx, "a@x.com")
	assert.Error(t, err)
}

func TestSignup_MailFailureKeepsAccount(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("smtp down")

	_, err := h.verify.Signup(context.Background(), "a@x.com", "alice", "pw1")
	require.NoError(t, err)

	u, err := h.store.Users().GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, u.HasPendingCode())
}

func TestVerify_SuccessThenNoPendingCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	code := h.mailer.lastCode()

	require.NoError(t, h.verify.Verify(ctx, "a@x.com", code))

	u, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.StateVerified, u.State())
	assert.Nil(t, u.VerificationCode)
	assert.Nil(t, u.VerificationCodeExpiresAt)
	require.NotNil(t, u.VerifiedAt)

	err = h.verify.Verify(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrNoPendingVerification)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, h.events.types(), models.EventUserVerified)
}

func TestVerify_WrongCodeLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.opts.NewCode = sequence("4821") })
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	before, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	for _, wrong := range []string{"1234", "4821 ", " 4821", "04821", ""} {
		assert.ErrorIs(t, h.verify.Verify(ctx, "a@x.com", wrong), ErrInvalidCode, wrong)
	}

	after, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestVerify_ExpiredClearsCodeAndStaysUnverified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	code := h.mailer.lastCode()

	// exactly at the expiry instant the code is still good
	h.clock.Advance(15*time.Minute + time.Nanosecond)
	assert.ErrorIs(t, h.verify.Verify(ctx, "a@x.com", code), ErrCodeExpired)

	u, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, u.IsVerified)
	assert.Nil(t, u.VerificationCode)
	assert.Nil(t, u.VerificationCodeExpiresAt)

	// retry goes through resend
	assert.ErrorIs(t, h.verify.Verify(ctx, "a@x.com", code), ErrNoPendingVerification)
	require.NoError(t, h.verify.Resend(ctx, "a@x.com"))
	require.NoError(t, h.verify.Verify(ctx, "a@x.com", h.mailer.lastCode()))
}

func TestVerify_AtExpiryInstant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)
	assert.NoError(t, h.verify.Verify(ctx, "a@x.com", h.mailer.lastCode()))
}

func TestVerify_UnknownEmail(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.verify.Verify(context.Background(), "ghost@x.com", "1234"), ErrNotFound)
}

func TestResend_TwiceProducesDifferentCodes(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.opts.NewCode = sequence("1111", "2222", "3333") })
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.verify.Resend(ctx, "a@x.com"))
	require.NoError(t, h.verify.Resend(ctx, "a@x.com"))

	codes := []string{h.mailer.sent[0].code, h.mailer.sent[1].code, h.mailer.sent[2].code}
	assert.Equal(t, []string{"1111", "2222", "3333"}, codes)

	u, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *u.VerificationCodeExpiresAt)

	assert.ErrorIs(t, h.verify.Verify(ctx, "a@x.com", "1111"), ErrInvalidCode)
	assert.ErrorIs(t, h.verify.Verify(ctx, "a@x.com", "2222"), ErrInvalidCode)
	assert.NoError(t, h.verify.Verify(ctx, "a@x.com", "3333"))
}

func TestResend_NeverRepeatsPreviousCode(t *testing.T) {
	h := newHarness(t, func(h *harness) { h.opts.NewCode = sequence("1111", "1111", "1111", "5555") })
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)

	require.NoError(t, h.verify.Resend(ctx, "a@x.com"))
	assert.Equal(t, "5555", h.mailer.lastCode())
}

func TestResend_RejectedOnceVerified(t *testing.T) {
	h := newHarness(t)
	h.signupVerified(t, "a@x.com", "alice", "pw1")
	sent := len(h.mailer.sent)

	assert.ErrorIs(t, h.verify.Resend(context.Background(), "a@x.com"), ErrNoPendingVerification)
	assert.Len(t, h.mailer.sent, sent)

	u, err := h.store.Users().GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, u.VerificationCode)
}

func TestResend_UnknownEmail(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.verify.Resend(context.Background(), "ghost@x.com"), ErrNotFound)
}

func TestResend_MailFailureIsUpstream(t *testing.T) {
	h := newHarness(t)
	_, err := h.verify.Signup(context.Background(), "a@x.com", "alice", "pw1")
	require.NoError(t, err)

	first := h.mailer.lastCode()

	h.mailer.err = errors.New("smtp down")
	assert.ErrorIs(t, h.verify.Resend(context.Background(), "a@x.com"), ErrUpstream)

	// the code already in the user's inbox keeps working
	h.mailer.err = nil
	require.NoError(t, h.verify.Verify(context.Background(), "a@x.com", first))
}

func TestResend_MailFailureAfterExpiryLeavesNoCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	first := h.mailer.lastCode()

	h.clock.Advance(16 * time.Minute)
	require.ErrorIs(t, h.verify.Verify(ctx, "a@x.com", first), ErrCodeExpired)

	h.mailer.err = errors.New("smtp down")
	require.ErrorIs(t, h.verify.Resend(ctx, "a@x.com"), ErrUpstream)

	u, err := h.store.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, u.HasPendingCode())
	assert.False(t, u.IsVerified)
}

func TestVerify_LostRaceIsConcurrentUpdate(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.deps.Users = &failingUsers{UserRepository: h.store.Users(), markErr: repositories.ErrStale}
	})
	_, err := h.verify.Signup(context.Background(), "a@x.com", "alice", "pw1")
	require.NoError(t, err)

	err = h.verify.Verify(context.Background(), "a@x.com", h.mailer.lastCode())
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.NotErrorIs(t, err, ErrUpstream)
}

func TestResend_LostRaceIsConcurrentUpdate(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.deps.Users = &failingUsers{UserRepository: h.store.Users(), replaceErr: repositories.ErrStale}
	})
	_, err := h.verify.Signup(context.Background(), "a@x.com", "alice", "pw1")
	require.NoError(t, err)
	sent := len(h.mailer.sent)

	assert.ErrorIs(t, h.verify.Resend(context.Background(), "a@x.com"), ErrConcurrentUpdate)
	assert.Len(t, h.mailer.sent, sent)
}

func TestVerify_ConcurrentCallsSucceedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.verify.Signup(ctx, "c@x.com", "carol", "pw1")
	require.NoError(t, err)
	code := h.mailer.lastCode()

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		errs      = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.verify.Verify(ctx, "c@x.com", code); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.EqualValues(t, 1, successes.Load())
	for err := range errs {
		assert.ErrorIs(t, err, ErrNoPendingVerification)
	}
	assert.Equal(t, []models.EventType{models.EventUserRegistered, models.EventUserVerified}, h.events.types())
}

func TestStoreTimeoutIsUpstream(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.deps.Users = &failingUsers{UserRepository: h.store.Users(), block: true}
		h.opts.Timeout = 20 * time.Millisecond
	})
	err := h.verify.Verify(context.Background(), "a@x.com", "1234")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
