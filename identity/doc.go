// Package identity is the HTTP client for the remote identity provider.
//
// [Client] exposes the provider's three operations: [Client.Login],
// [Client.Signup], and [Client.Refresh]. Every non-success outcome is mapped
// onto a small error taxonomy that callers match with errors.Is and errors.As:
// [ErrInvalidCredentials], [ErrValidationFailed] (via [*ValidationError]),
// [ErrNetworkUnavailable], and [ErrProviderError] (via [*ProviderError]).
//
// # Architecture boundaries
//
// The client performs exactly one HTTP exchange per call. It does not retry,
// decode token claims, or hold session state.
//
// # What this package must NOT do
//
//   - Retry a failed provider call.
//   - Log request bodies, passwords, or tokens.
//   - Import the root package or session.
package identity
