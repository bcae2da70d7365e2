package claims

import "time"

// DefaultRole is assigned when the token carries no role claim.
const DefaultRole = "user"

// Identity is the set of identity fields decoded from an access token.
//
// An Identity is only meaningful next to the credential it was decoded from;
// the session store never keeps one without the other.
type Identity struct {
	SubjectID   string
	Username    string
	Email       string
	DisplayName string
	Role        string

	// ExpiresAt is the token's exp claim, zero when the claim is absent.
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carried an exp claim.
func (i Identity) HasExpiry() bool {
	return !i.ExpiresAt.IsZero()
}
