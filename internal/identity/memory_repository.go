package identity

import (
	"context"
	"sync"
)

// MemoryStore keeps users and credentials in process memory. It backs local
// development and tests.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]User
	credentials map[string]Credential
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]User),
		credentials: make(map[string]Credential),
	}
}

// Users returns a directory that locks per call.
func (s *MemoryStore) Users() UserDirectory { return &memoryUsers{s: s, lock: true} }

// Credentials returns a credential store that locks per call.
func (s *MemoryStore) Credentials() CredentialStore { return &memoryCredentials{s: s, lock: true} }

// WithTx holds the store lock for the whole of fn and restores the previous
// state when fn fails.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	if err := fn(memoryTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID      int64
	users       map[int64]User
	credentials map[string]Credential
}

func (s *MemoryStore) snapshot() memorySnapshot {
	users := make(map[int64]User, len(s.users))
	for id, u := range s.users {
		users[id] = u
	}
	creds := make(map[string]Credential, len(s.credentials))
	for email, c := range s.credentials {
		creds[email] = c
	}
	return memorySnapshot{nextID: s.nextID, users: users, credentials: creds}
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.nextID = snap.nextID
	s.users = snap.users
	s.credentials = snap.credentials
}

type memoryTx struct {
	s *MemoryStore
}

func (t memoryTx) Users() UserDirectory         { return &memoryUsers{s: t.s} }
func (t memoryTx) Credentials() CredentialStore { return &memoryCredentials{s: t.s} }

type memoryUsers struct {
	s    *MemoryStore
	lock bool
}

func (r *memoryUsers) acquire() func() {
	if !r.lock {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memoryUsers) FindByID(_ context.Context, id int64) (User, error) {
	defer r.acquire()()
	user, ok := r.s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryUsers) FindByIDForUpdate(ctx context.Context, id int64) (User, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryUsers) FindByEmail(_ context.Context, email string) (User, error) {
	defer r.acquire()()
	for _, user := range r.s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryUsers) Save(_ context.Context, user User) (User, error) {
	defer r.acquire()()
	for id, existing := range r.s.users {
		if existing.Email == user.Email && id != user.ID {
			return User{}, ErrDuplicateEmail
		}
	}
	if user.ID == 0 {
		r.s.nextID++
		user.ID = r.s.nextID
	} else if _, ok := r.s.users[user.ID]; !ok {
		return User{}, ErrNotFound
	}
	r.s.users[user.ID] = user
	return user, nil
}

type memoryCredentials struct {
	s    *MemoryStore
	lock bool
}

func (r *memoryCredentials) acquire() func() {
	if !r.lock {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memoryCredentials) FindByEmail(_ context.Context, email string) (Credential, error) {
	defer r.acquire()()
	cred, ok := r.s.credentials[email]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (r *memoryCredentials) Save(_ context.Context, cred Credential) error {
	defer r.acquire()()
	r.s.credentials[cred.Email] = cred
	return nil
}

func (r *memoryCredentials) Delete(_ context.Context, cred Credential) error {
	defer r.acquire()()
	delete(r.s.credentials, cred.Email)
	return nil
}
