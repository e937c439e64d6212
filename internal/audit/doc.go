// Package audit implements async event dispatching for token lifecycle and gate decisions.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//     It stamps the event time from its configured clock and hands sinks a context
//     that keeps request values after the request is cancelled.
//   - [Event] — structured audit record with timestamp, type, owner, path, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit — that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import tokengate or any sibling internal package.
//   - Carry bearer tokens or refresh values in events.
package audit
