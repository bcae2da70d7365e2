package authsession

import (
	"errors"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/session"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects a login.
	ErrInvalidCredentials = identity.ErrInvalidCredentials
	// ErrValidationFailed matches every *ValidationError.
	ErrValidationFailed = identity.ErrValidationFailed
	// ErrNetworkUnavailable is returned when the provider could not be reached.
	ErrNetworkUnavailable = identity.ErrNetworkUnavailable
	// ErrProviderError matches every *ProviderError.
	ErrProviderError = identity.ErrProviderError
	// ErrDecode is returned for an access token whose claims cannot be read.
	ErrDecode = claims.ErrDecode
	// ErrRecordNotFound is returned by Restore for an unknown session id.
	ErrRecordNotFound = session.ErrRecordNotFound
	// ErrRecordCorrupt is returned by Restore for a record that could not be
	// read. The record has been deleted.
	ErrRecordCorrupt = session.ErrRecordCorrupt

	// ErrUnauthenticated means the session holds no usable credential. It is
	// terminal for the session: the user has to sign in again.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAutoLoginFailed is returned by Signup when the account was created
	// but the follow-up login failed.
	ErrAutoLoginFailed = errors.New("account created but login failed")
	// ErrEngineNotReady is returned by methods of a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrNilSession is returned when a nil session store is passed.
	ErrNilSession = errors.New("nil session store")
	// ErrNotSupported is returned when the configured persister lacks the
	// requested capability.
	ErrNotSupported = errors.New("not supported by the session persister")
)

type (
	// ValidationError carries the provider's reason for rejecting input.
	ValidationError = identity.ValidationError
	// ProviderError is any provider response outside the mapped cases.
	ProviderError = identity.ProviderError
)

// UserMessage returns the message to show an end user for err.
func UserMessage(err error) string {
	var (
		ve *ValidationError
		pe *ProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAutoLoginFailed):
		return "Account created but login failed. Please sign in manually."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.As(err, &ve):
		return ve.Detail
	case errors.Is(err, ErrNetworkUnavailable):
		return "Unable to reach the sign-in service. Please try again."
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrDecode):
		return "Your session has expired. Please sign in again."
	case errors.As(err, &pe) && pe.Detail != "":
		return pe.Detail
	default:
		return "Authentication failed"
	}
}
