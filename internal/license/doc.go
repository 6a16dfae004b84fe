// Package license implements the license key lifecycle for the Avion
// dashboard: existence checks, activation with hardware binding,
// expiration evaluation, and lazy deactivation of expired keys.
//
// # Lifecycle
//
// A key is issued unclaimed, with all owner and activation fields null.
// Activation is a one-way transition that binds the key to an account
// and a hardware identifier in a single conditional write, and computes
// the expiry from the key's kind:
//
//	weekly   -> activated_at + 7 days
//	monthly  -> activated_at + 30 days
//	lifetime -> never expires
//
// Once past its expiry a key is marked inactive the next time it is
// read (lazy expiration); is_active=false is terminal for usability.
//
// # Activation flow
//
//	lic, err := registry.Activate(ctx, " avion-ab12-cd34-ef56 ", ownerID, hwid)
//
// The raw key is trimmed and upper-cased before any comparison. Checks
// run in order, first failure wins: format, existence, ownership,
// hardware lock. Re-activation by the same owner on the same hardware
// is idempotent and never recomputes the expiry.
//
// # Concurrency
//
// The registry keeps no shared mutable state of its own. The write is
// conditioned on the record still being unclaimed at write time, so two
// concurrent activators of the same key resolve to exactly one winner;
// the loser observes ErrAlreadyClaimed. Every store call runs under an
// explicit timeout, surfaced as ErrStoreTimeout and never conflated
// with "key not found".
package license
