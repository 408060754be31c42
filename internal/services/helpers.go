package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ballouchi/internal/locks"
	"ballouchi/internal/logger"
	"ballouchi/internal/models"
	"ballouchi/internal/repositories"
	"ballouchi/internal/utils"
)

const (
	defaultCodeTTL = 15 * time.Minute
	defaultTimeout = 10 * time.Second
)

// Options tune the lifecycle. Zero values fall back to the defaults.
type Options struct {
	Now     func() time.Time
	NewCode func() (string, error)
	CodeTTL time.Duration
	// Timeout bounds every single collaborator call.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewCode == nil {
		o.NewCode = utils.NewVerificationCode
	}
	if o.CodeTTL <= 0 {
		o.CodeTTL = defaultCodeTTL
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// Deps are the collaborators shared by the account services. Events,
// Admins and Locker may be nil.
type Deps struct {
	Users      repositories.UserRepository
	Merchants  repositories.MerchantRepository
	Identities IdentityDirectory
	Hasher     AuthService
	Mailer     EmailService
	Events     EventPublisher
	Admins     AdminNotifier
	Locker     locks.Locker
	Log        *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = noopPublisher{}
	}
	if d.Admins == nil {
		d.Admins = noopNotifier{}
	}
	if d.Locker == nil {
		d.Locker = locks.NewKeyedMutex()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

// base carries what every service needs to talk to collaborators.
type base struct {
	deps Deps
	opts Options
}

func newBase(d Deps, o Options) base {
	return base{deps: d.withDefaults(), opts: o.withDefaults()}
}

func (b *base) now() time.Time { return b.opts.Now() }

func (b *base) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, b.deps.Log)
}

// bounded derives the deadline for one collaborator call.
func (b *base) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opts.Timeout)
}

// lock serializes mutations of one account.
func (b *base) lock(ctx context.Context, email string) (func(), error) {
	lctx, cancel := b.bounded(ctx)
	defer cancel()
	unlock, err := b.deps.Locker.Lock(lctx, email)
	if err != nil {
		return nil, upstream("lock account", err)
	}
	return unlock, nil
}

func (b *base) getUser(ctx context.Context, email string) (*models.User, error) {
	cctx, cancel := b.bounded(ctx)
	defer cancel()
	u, err := b.deps.Users.GetByEmail(cctx, email)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func upstream(op string, err error) error {
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// storeErr maps repository sentinels onto service errors. Anything else is
// a failing store.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrDuplicate):
		return ErrConflict
	case errors.Is(err, repositories.ErrStale):
		return ErrConcurrentUpdate
	default:
		return upstream(op, err)
	}
}
