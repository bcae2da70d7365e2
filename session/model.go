package session

import (
	"time"

	"github.com/MrEthical07/authsession/claims"
)

// State is the lifecycle state of a session.
type State uint8

const (
	// Anonymous means no credential is held.
	Anonymous State = iota
	// Authenticated means a credential and its identity are held.
	Authenticated
	// Refreshing means a refresh is in flight for an authenticated session.
	// A Store never reports it on its own; the refresh coordinator overlays it.
	Refreshing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Credential is the token pair issued by the identity provider.
//
// An empty RefreshToken means the provider issued none. A zero ExpiresAt
// means the access token's expiry is unknown.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// HasRefreshToken reports whether the credential can be refreshed.
func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// ExpiresWithin reports whether the access token is known to expire before
// now+d. Unknown expiry never reports true.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.ExpiresAt)
}

// Session is an immutable snapshot of a Store.
//
// Credential and Identity are either both nil (Anonymous) or both set.
type Session struct {
	ID         string
	State      State
	Credential *Credential
	Identity   *claims.Identity
	Generation uint64
}

// Authenticated reports whether the snapshot holds a credential.
func (s Session) Authenticated() bool {
	return s.Credential != nil
}

// AccessToken returns the held access token, or "" when anonymous.
func (s Session) AccessToken() string {
	if s.Credential == nil {
		return ""
	}
	return s.Credential.AccessToken
}

// Record returns the persisted form of the snapshot. The second result is
// false for anonymous sessions.
func (s Session) Record() (Record, bool) {
	if s.Credential == nil || s.Identity == nil {
		return Record{}, false
	}
	rec := Record{
		ID:           s.Identity.SubjectID,
		Email:        s.Identity.Email,
		Name:         s.Identity.DisplayName,
		Username:     s.Identity.Username,
		Role:         s.Identity.Role,
		AccessToken:  s.Credential.AccessToken,
		RefreshToken: s.Credential.RefreshToken,
		SessionID:    s.ID,
	}
	if !s.Credential.ExpiresAt.IsZero() {
		rec.ExpiresAt = s.Credential.ExpiresAt.Unix()
	}
	return rec, true
}
