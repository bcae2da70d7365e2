// Package jwt issues and verifies provider-style access tokens.
//
// The session library itself only decodes claims. This package is the opt-in
// path for deployments that hold the provider's key: [Manager.Decoder] puts
// signature, expiry, issuer, and audience checks in front of claim decoding.
// Test fixtures and the bundled fake provider use [Manager.IssueAccess] to mint
// tokens.
package jwt
