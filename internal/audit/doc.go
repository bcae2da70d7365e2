// Package audit relays session lifecycle events to a caller-supplied sink.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, logrus, no-op).
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: structured record of one login, refresh, or sign-out outcome.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. It does NOT decide which events to
// emit; the Engine and the refresh coordinator do.
//
// # What this package must NOT do
//
//   - Filter events based on business logic.
//   - Import the root package or any sibling internal package.
//   - Put token material into events.
package audit
