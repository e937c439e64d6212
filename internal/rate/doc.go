// Package rate provides the Redis-backed failed-login throttle used by the engine.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// under the configured prefix:
//   - al:  — failed logins per identifier
//   - ali: — failed logins per IP
//
// # What this package must NOT do
//
//   - Count successful logins or refresh calls.
//   - Be imported outside the tokengate module.
package rate
