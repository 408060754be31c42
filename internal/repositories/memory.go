package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"ballouchi/internal/models"
)

// MemoryStore keeps users, identities and merchants in process memory. It
// applies the same conditional-update rules as the postgres and mongo
// stores and hands out copies, never its own pointers.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]models.User
	identities map[string]models.Identity // by uid
	merchants  map[string][]models.Merchant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		identities: make(map[string]models.Identity),
		merchants:  make(map[string][]models.Merchant),
	}
}

func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }
func (s *MemoryStore) Identities() IdentityRepository { return memoryIdentities{s} }
func (s *MemoryStore) Merchants() MerchantRepository { return memoryMerchants{s} }

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.Email]; ok {
		return ErrDuplicate
	}
	r.s.users[user.Email] = cloneUser(*user)
	return nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (r memoryUsers) ReplaceVerificationCode(_ context.Context, email string, prevCode *string, code string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok || u.IsVerified || !sameCode(u.VerificationCode, prevCode) {
		return ErrStale
	}
	u.VerificationCode = &code
	u.VerificationCodeExpiresAt = &expiresAt
	u.UpdatedAt = time.Now().UTC()
	r.s.users[email] = u
	return nil
}

func (r memoryUsers) ClearVerificationCode(_ context.Context, email, prevCode string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok || u.IsVerified || !sameCode(u.VerificationCode, &prevCode) {
		return ErrStale
	}
	u.VerificationCode = nil
	u.VerificationCodeExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	r.s.users[email] = u
	return nil
}

func (r memoryUsers) MarkVerified(_ context.Context, email, code string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok || u.IsVerified || !sameCode(u.VerificationCode, &code) {
		return ErrStale
	}
	u.IsVerified = true
	u.VerificationCode = nil
	u.VerificationCodeExpiresAt = nil
	u.VerifiedAt = &at
	u.UpdatedAt = at
	r.s.users[email] = u
	return nil
}

func (r memoryUsers) UpdateAccountType(_ context.Context, email string, accountType models.AccountType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok {
		return ErrNotFound
	}
	u.AccountType = accountType
	u.UpdatedAt = time.Now().UTC()
	r.s.users[email] = u
	return nil
}

func (r memoryUsers) UpdateLocation(_ context.Context, email string, loc models.Location) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok {
		return ErrNotFound
	}
	u.Location = &loc
	u.UpdatedAt = time.Now().UTC()
	r.s.users[email] = u
	return nil
}

func (r memoryUsers) Delete(_ context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[email]; !ok {
		return ErrNotFound
	}
	delete(r.s.users, email)
	delete(r.s.merchants, email)
	return nil
}

type memoryIdentities struct{ s *MemoryStore }

func (r memoryIdentities) Create(_ context.Context, identity *models.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.identities {
		if id.Email == identity.Email {
			return ErrDuplicate
		}
	}
	if _, ok := r.s.identities[identity.UID]; ok {
		return ErrDuplicate
	}
	r.s.identities[identity.UID] = *identity
	return nil
}

func (r memoryIdentities) GetByEmail(_ context.Context, email string) (*models.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.identities {
		if id.Email == email {
			c := id
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r memoryIdentities) Delete(_ context.Context, uid string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.identities[uid]; !ok {
		return ErrNotFound
	}
	delete(r.s.identities, uid)
	return nil
}

type memoryMerchants struct{ s *MemoryStore }

func (r memoryMerchants) Create(_ context.Context, m *models.Merchant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, list := range r.s.merchants {
		for _, existing := range list {
			if existing.ID == m.ID {
				return ErrDuplicate
			}
		}
	}
	r.s.merchants[m.Email] = append(r.s.merchants[m.Email], *m)
	return nil
}

func (r memoryMerchants) ListByEmail(_ context.Context, email string) ([]*models.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := r.s.merchants[email]
	res := make([]*models.Merchant, 0, len(list))
	for i := range list {
		m := list[i]
		res = append(res, &m)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (r memoryMerchants) DeleteByEmail(_ context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.merchants, email)
	return nil
}

func sameCode(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneUser(u models.User) models.User {
	if u.VerificationCode != nil {
		c := *u.VerificationCode
		u.VerificationCode = &c
	}
	if u.VerificationCodeExpiresAt != nil {
		t := *u.VerificationCodeExpiresAt
		u.VerificationCodeExpiresAt = &t
	}
	if u.Location != nil {
		l := *u.Location
		u.Location = &l
	}
	if u.VerifiedAt != nil {
		t := *u.VerifiedAt
		u.VerifiedAt = &t
	}
	return u
}
