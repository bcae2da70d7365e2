package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authsession/claims"
)

// ErrEmptyAccessToken is returned by Replace for a credential without an
// access token.
var ErrEmptyAccessToken = errors.New("credential has empty access token")

const minPersistTTL = time.Second

// Store owns the state of one session.
//
// Get is lock-free. Writers are serialized, and each write publishes a fresh
// immutable snapshot with a higher generation.
type Store struct {
	id        string
	persister Persister
	lifetime  time.Duration

	mu  sync.Mutex
	gen uint64
	cur atomic.Pointer[Session]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPersister writes every state change through to p.
func WithPersister(p Persister) StoreOption {
	return func(s *Store) {
		s.persister = p
	}
}

// WithLifetime sets the persisted record lifetime. Zero derives it from the
// credential: unbounded while a refresh token is held, otherwise until the
// access token expires.
func WithLifetime(d time.Duration) StoreOption {
	return func(s *Store) {
		s.lifetime = d
	}
}

// NewStore returns an anonymous Store for session id.
func NewStore(id string, opts ...StoreOption) *Store {
	s := &Store{id: id}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cur.Store(&Session{ID: id, State: Anonymous})
	return s
}

// ID returns the session id.
func (s *Store) ID() string {
	return s.id
}

// Get returns the current snapshot.
func (s *Store) Get() Session {
	return *s.cur.Load()
}

// Generation returns the generation of the current snapshot.
func (s *Store) Generation() uint64 {
	return s.cur.Load().Generation
}

// Replace installs cred and ident as one unit. The in-memory swap always
// happens; a persist failure is returned afterwards.
func (s *Store) Replace(ctx context.Context, cred Credential, ident claims.Identity) error {
	if cred.AccessToken == "" {
		return ErrEmptyAccessToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(ctx, cred, ident)
}

// ReplaceIf is Replace conditioned on the store still being at generation gen.
// It reports whether the write happened.
func (s *Store) ReplaceIf(ctx context.Context, gen uint64, cred Credential, ident claims.Identity) (bool, error) {
	if cred.AccessToken == "" {
		return false, ErrEmptyAccessToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, nil
	}
	return true, s.replaceLocked(ctx, cred, ident)
}

// Clear returns the session to Anonymous and deletes its persisted record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// ClearIf is Clear conditioned on the store still being at generation gen.
// It reports whether the write happened.
func (s *Store) ClearIf(ctx context.Context, gen uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *Store) replaceLocked(ctx context.Context, cred Credential, ident claims.Identity) error {
	if cred.TokenType == "" {
		cred.TokenType = "bearer"
	}
	s.gen++
	next := &Session{
		ID:         s.id,
		State:      Authenticated,
		Credential: &cred,
		Identity:   &ident,
		Generation: s.gen,
	}
	s.cur.Store(next)

	if s.persister == nil {
		return nil
	}
	rec, _ := next.Record()
	return s.persister.Save(ctx, rec, s.persistTTL(cred))
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.gen++
	s.cur.Store(&Session{ID: s.id, State: Anonymous, Generation: s.gen})

	if s.persister == nil {
		return nil
	}
	return s.persister.Delete(ctx, s.id)
}

// seed installs a restored state without writing it back.
func (s *Store) seed(cred Credential, ident claims.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.TokenType == "" {
		cred.TokenType = "bearer"
	}
	s.gen++
	s.cur.Store(&Session{
		ID:         s.id,
		State:      Authenticated,
		Credential: &cred,
		Identity:   &ident,
		Generation: s.gen,
	})
}

func (s *Store) persistTTL(cred Credential) time.Duration {
	if s.lifetime > 0 {
		return s.lifetime
	}
	if cred.HasRefreshToken() || cred.ExpiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(cred.ExpiresAt)
	if ttl < minPersistTTL {
		return minPersistTTL
	}
	return ttl
}
