// Package authsession manages the credential lifecycle of authenticated
// sessions against a remote identity provider: login and signup, claim
// decoding, bearer injection on outbound requests, and single-flight refresh
// when the provider rejects an expired access token.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Each session lives in a [session.Store]; the Engine never
// holds session state itself.
//
// # Architecture boundaries
//
// authsession is the public surface. It exposes [Engine], [Builder], [Config],
// the [Coordinator] that serializes refreshes per session, and the [Transport]
// that attaches credentials to requests. Provider I/O lives in identity,
// claim decoding in claims, and flow orchestration in internal/flows.
//
// # What this package must NOT do
//
//   - Retry a provider call, except the one post-refresh retry of a request
//     that was rejected with 401.
//   - Log token material.
//   - Trust identity fields that were not decoded from the current access
//     token.
package authsession
