package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidationFailed matches every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNetworkUnavailable is returned when no response was received. The
	// transport error is wrapped alongside it.
	ErrNetworkUnavailable = errors.New("identity provider unreachable")
	// ErrProviderError matches every *ProviderError.
	ErrProviderError = errors.New("identity provider error")
)

// ValidationError carries the provider's reason for rejecting input.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Detail
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ProviderError is any provider response outside the mapped cases.
type ProviderError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("identity %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("identity %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// Is reports whether target is ErrProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderError
}

func networkError(err error) error {
	return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
}
