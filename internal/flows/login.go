package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInput
	LoginFailureProvider
	LoginFailureDecode
)

// LoginResult carries either the new credential or failure metadata.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	Credential session.Credential
	Identity   claims.Identity
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Provider Provider
	Decode   claims.DecodeFunc
}

// RunLogin exchanges username and password for a credential and decodes its
// identity. A token without a username claim takes the submitted username.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{
			Failure: LoginFailureInput,
			Err:     &identity.ValidationError{Detail: "username and password are required"},
		}
	}

	tok, err := deps.Provider.Login(ctx, username, password)
	if err != nil {
		return LoginResult{Failure: LoginFailureProvider, Err: err}
	}

	ident, err := decode(deps.Decode, tok.AccessToken)
	if err != nil {
		return LoginResult{Failure: LoginFailureDecode, Err: err}
	}
	if ident.Username == "" {
		ident.Username = username
	}

	return LoginResult{
		Failure: LoginFailureNone,
		Credential: session.Credential{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			ExpiresAt:    ident.ExpiresAt,
		},
		Identity: ident,
	}
}

func decode(fn claims.DecodeFunc, token string) (claims.Identity, error) {
	if fn == nil {
		fn = claims.Decode
	}
	return fn(token)
}
