// Package revocation is the blacklist of access tokens invalidated before their natural
// expiry.
//
// Entries are keyed by a keyed BLAKE3 fingerprint of the raw token, so the registry never
// holds a live bearer credential. A [Registry] layers a bounded in-memory cache over a
// durable [Store]. The cache is a read-through overlay: a miss always falls back to the
// store, and a process restart simply starts with an empty cache.
//
// Entries never need to outlive the token they name. The cache evicts at the token's
// expiry and [Registry.Sweep] deletes expired durable rows.
package revocation
