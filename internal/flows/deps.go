package flows

import (
	"context"

	"github.com/MrEthical07/authsession/identity"
)

// Provider is the subset of the identity client used by flows.
type Provider interface {
	Login(ctx context.Context, username, password string) (*identity.Token, error)
	Signup(ctx context.Context, p identity.Profile) (*identity.SignupResult, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Token, error)
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Login   LoginDeps
	Signup  SignupDeps
	Refresh RefreshDeps
}
