// Package claims decodes identity claims from provider-issued access tokens.
//
// # Trust model
//
// [Decode] reads the payload segment of a three-segment token without checking
// its signature. The identity provider's transport is trusted entirely. Callers
// that hold the provider's key can put a jwt.Verifier in front of Decode.
//
// # Architecture boundaries
//
// This package owns claim-name mapping (sub/id, full_name/name, role default)
// and the [Identity] value. It does NOT fetch tokens, store sessions, or decide
// when a token needs refreshing.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Import authsession, identity, or session (no upward imports).
//   - Panic on malformed input.
package claims
