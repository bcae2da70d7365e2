// Package flows contains the orchestration behind each Engine operation.
//
// Each flow function (RunLogin, RunSignup, RunRefresh, RunSignOut) accepts a
// typed dependency struct and returns a result carrying a failure kind that the
// root package maps onto its public errors. Flows are unit-tested with fake
// dependencies and keep the Engine thin.
//
// # Architecture boundaries
//
// Flows call the identity provider and the claims decoder through their
// dependency structs. They do NOT own session stores, the refresh coordinator,
// metrics, or audit sinks; the Engine does.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Write session state except through the store handed to RunSignOut.
package flows
