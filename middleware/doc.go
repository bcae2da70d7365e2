// Package middleware protects resource-server handlers with bearer tokens
// issued by the identity provider.
//
// # Guards
//
//   - [Guard] decodes the bearer token and attaches its identity to the
//     request context.
//   - [RequireRole] additionally restricts the handler to a set of roles.
//
// Handlers read the identity with [IdentityFromContext].
//
// # Architecture boundaries
//
// Token checking is delegated to a claims.DecodeFunc. Pass the decoder of a
// jwt.Manager to verify signatures; the default only decodes.
//
// # What this package must NOT do
//
//   - Refresh or issue tokens.
//   - Keep per-session state.
package middleware
