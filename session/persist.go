package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authsession/claims"
)

// ErrRecordNotFound is returned when no record exists for a session id.
var ErrRecordNotFound = errors.New("session record not found")

// Persister stores session records outside process memory.
//
// A ttl of zero means the record does not expire.
type Persister interface {
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Load(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}

// Restore rebuilds the Store for session id from p.
//
// The identity is decoded from the stored access token. A record that cannot
// be decoded is deleted and reported as ErrRecordCorrupt. The returned Store
// writes through to p.
func Restore(ctx context.Context, id string, p Persister, decode claims.DecodeFunc, opts ...StoreOption) (*Store, error) {
	if p == nil {
		return nil, errors.New("restore requires a persister")
	}
	if decode == nil {
		decode = claims.Decode
	}

	rec, err := p.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordCorrupt) {
			_ = p.Delete(ctx, id)
		}
		return nil, err
	}

	ident, err := decode(rec.AccessToken)
	if err != nil {
		_ = p.Delete(ctx, id)
		return nil, fmt.Errorf("%w: %w", ErrRecordCorrupt, err)
	}
	if ident.Username == "" {
		ident.Username = rec.Username
	}

	opts = append(opts, WithPersister(p))
	s := NewStore(id, opts...)
	s.seed(Credential{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    ident.ExpiresAt,
	}, ident)
	return s, nil
}
