// Package cache implements the two-tier query result cache: deterministic
// key derivation, a priority-ordered chain of backing tiers, and TTL-based
// expiry enforced at read time.
//
// # Tiers
//
// A [Tier] is a minimal byte store with TTLs. Two production tiers are
// provided, plus an in-process one:
//
//   - [NewRedisTier] — fast networked primary. Optional: if construction
//     fails the process runs without it, and any later request error disables
//     the tier for the remainder of the process lifetime so a flapping server
//     never causes a retry storm. All round-trips carry a short fixed
//     timeout.
//
//   - [NewSQLiteTier] — durable local fallback backed by
//     [modernc.org/sqlite] (pure Go, no CGO). Entries carry an absolute
//     expiry timestamp checked on every read; there is no background sweep.
//     Corrupt backing files detected at startup are purged and
//     initialization is retried exactly once.
//
//   - [NewMemoryTier] — in-process map, useful as an optional L0 and in
//     tests.
//
// # Store
//
// [Store] chains tiers in priority order. A read returns the first
// non-expired hit; a write attempts every tier and succeeds when at least
// one tier accepted it. Tier errors are logged and absorbed: callers never
// see a cache failure, they just see misses. Values are serialized with
// msgpack; [GetAs] deserializes into the caller's type.
//
// # Keys
//
// [DeriveKey] hashes the query text together with a canonical,
// order-independent rendering of its parameters, so two logically identical
// requests always share a key. Keys carry the [KeyNamespace] prefix to
// isolate this layer from other users of a shared store.
package cache
