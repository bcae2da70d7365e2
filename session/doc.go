// Package session holds the credential state of one authenticated session.
//
// # Store
//
// A [Store] is the only owner of a session's state. Readers take lock-free
// snapshots through [Store.Get]; writers swap the whole credential and identity
// pair in one step, so no reader ever observes a new access token next to an
// old refresh token. Every write bumps a generation counter; [Store.ReplaceIf]
// and [Store.ClearIf] let a refresh that started against one generation lose
// cleanly to a sign-out or a newer login that happened meanwhile.
//
// # Persistence
//
// A Store may write through to a [Persister]. [RedisPersister] keeps a JSON
// [Record] per session; [Restore] rebuilds a Store from it and re-derives the
// identity from the stored access token rather than trusting the record.
//
// # Architecture boundaries
//
// This package does NOT talk to the identity provider, decide when to refresh,
// or attach tokens to requests. Those belong to the root package.
//
// # What this package must NOT do
//
//   - Import the root package or identity (no upward imports).
//   - Log or print token material.
//   - Mutate a published [Session] snapshot.
package session
