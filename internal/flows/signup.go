package flows

import (
	"context"
	"net/mail"
	"strings"

	"github.com/MrEthical07/authsession/identity"
)

// SignupFailureKind classifies signup flow failures for root-level mapping.
type SignupFailureKind int

const (
	SignupFailureNone SignupFailureKind = iota
	SignupFailureInput
	SignupFailureProvider
	// SignupFailureAutoLogin means the account exists but the follow-up login
	// failed. Result is still set.
	SignupFailureAutoLogin
)

// SignupResult carries the provider's signup response and, when auto-login
// ran, its outcome.
type SignupResult struct {
	Failure SignupFailureKind
	Err     error
	Result  *identity.SignupResult
	Login   *LoginResult
}

// SignupDeps captures signup flow dependencies.
type SignupDeps struct {
	Provider  Provider
	AutoLogin bool
	Login     LoginDeps
}

// RunSignup registers p and, when deps.AutoLogin is set, logs in with the same
// username and password.
func RunSignup(ctx context.Context, p identity.Profile, deps SignupDeps) SignupResult {
	if detail := validateProfile(p); detail != "" {
		return SignupResult{
			Failure: SignupFailureInput,
			Err:     &identity.ValidationError{Detail: detail},
		}
	}

	res, err := deps.Provider.Signup(ctx, p)
	if err != nil {
		return SignupResult{Failure: SignupFailureProvider, Err: err}
	}
	if !deps.AutoLogin {
		return SignupResult{Failure: SignupFailureNone, Result: res}
	}

	login := RunLogin(ctx, p.Username, p.Password, deps.Login)
	if login.Failure != LoginFailureNone {
		return SignupResult{
			Failure: SignupFailureAutoLogin,
			Err:     login.Err,
			Result:  res,
			Login:   &login,
		}
	}
	return SignupResult{Failure: SignupFailureNone, Result: res, Login: &login}
}

func validateProfile(p identity.Profile) string {
	switch {
	case strings.TrimSpace(p.Username) == "":
		return "username is required"
	case p.Password == "":
		return "password is required"
	case strings.TrimSpace(p.Email) == "":
		return "email is required"
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return "invalid email address"
	}
	return ""
}
