package flows

import (
	"context"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoRefreshToken
	RefreshFailureProvider
	RefreshFailureDecode
)

// RefreshResult carries either the refreshed credential or failure metadata.
type RefreshResult struct {
	Failure    RefreshFailureKind
	Err        error
	Credential session.Credential
	Identity   claims.Identity
	Rotated    bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Provider Provider
	Decode   claims.DecodeFunc
}

// RunRefresh performs one provider refresh for cur and decodes the new access
// token. The refresh token is carried over unless the provider rotated it.
func RunRefresh(ctx context.Context, cur session.Credential, deps RefreshDeps) RefreshResult {
	if !cur.HasRefreshToken() {
		return RefreshResult{Failure: RefreshFailureNoRefreshToken}
	}

	tok, err := deps.Provider.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureProvider, Err: err}
	}

	ident, err := decode(deps.Decode, tok.AccessToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	next := session.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: cur.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    ident.ExpiresAt,
	}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != cur.RefreshToken
	if rotated {
		next.RefreshToken = tok.RefreshToken
	}
	if next.TokenType == "" {
		next.TokenType = cur.TokenType
	}

	return RefreshResult{
		Failure:    RefreshFailureNone,
		Credential: next,
		Identity:   ident,
		Rotated:    rotated,
	}
}
