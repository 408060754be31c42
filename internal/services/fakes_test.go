package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ballouchi/internal/authz"
	"ballouchi/internal/models"
	"ballouchi/internal/repositories"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	to, username, code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, to, username, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, username: username, code: code})
	return nil
}

func (m *fakeMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].code
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.UserEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev models.UserEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) NotifyAdmins(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string]string{}} }

func (b *fakeBlobs) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = string(data)
	return "https://files.example/" + key, nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// failingUsers wraps a repository and fails selected calls.
type failingUsers struct {
	repositories.UserRepository
	createErr  error
	markErr    error
	replaceErr error
	block      bool
}

func (f *failingUsers) Create(ctx context.Context, u *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.UserRepository.Create(ctx, u)
}

func (f *failingUsers) MarkVerified(ctx context.Context, email, code string, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	return f.UserRepository.MarkVerified(ctx, email, code, at)
}

func (f *failingUsers) ReplaceVerificationCode(ctx context.Context, email string, prevCode *string, code string, expiresAt time.Time) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	return f.UserRepository.ReplaceVerificationCode(ctx, email, prevCode, code, expiresAt)
}

func (f *failingUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.UserRepository.GetByEmail(ctx, email)
}

// sequence returns the given codes in order, then repeats the last one.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return "", errors.New("no codes")
		}
		c := codes[min(i, len(codes)-1)]
		i++
		return c, nil
	}
}

type harness struct {
	store    *repositories.MemoryStore
	clock    *fakeClock
	mailer   *fakeMailer
	events   *fakePublisher
	admins   *fakeNotifier
	blobs    *fakeBlobs
	tokens   *authz.TokenIssuer
	deps     Deps
	opts     Options
	verify   *VerificationService
	sessions *SessionService
	accounts *AccountService
	merchant *MerchantService
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		store:  repositories.NewMemoryStore(),
		clock:  &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		mailer: &fakeMailer{},
		events: &fakePublisher{},
		admins: &fakeNotifier{},
		blobs:  newFakeBlobs(),
	}
	h.tokens = authz.NewTokenIssuer("test-secret", time.Hour).WithClock(h.clock.Now)
	h.deps = Deps{
		Users:      h.store.Users(),
		Merchants:  h.store.Merchants(),
		Identities: NewIdentityService(h.store.Identities()),
		Hasher:     NewAuthService(bcrypt.MinCost),
		Mailer:     h.mailer,
		Events:     h.events,
		Admins:     h.admins,
	}
	h.opts = Options{Now: h.clock.Now, Timeout: time.Second}
	for _, o := range opts {
		o(h)
	}
	h.verify = NewVerificationService(h.deps, h.opts)
	h.sessions = NewSessionService(h.deps, h.opts, h.tokens)
	h.accounts = NewAccountService(h.deps, h.opts, h.blobs)
	h.merchant = NewMerchantService(h.deps, h.opts, h.blobs)
	return h
}

func (h *harness) signupVerified(t *testing.T, email, username, password string) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.verify.Signup(ctx, email, username, password); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := h.verify.Verify(ctx, email, h.mailer.lastCode()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
