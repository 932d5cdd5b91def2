// Package downloads implements download counting for the registry.
//
// Download requests increment an in-memory sharded counter and return
// immediately; a background flush periodically drains the shards and
// persists the pending counts to per-day rows in the database. A failed
// shard flush merges its counts back into the counter, so every recorded
// download is eventually persisted exactly once under normal operation
// and at least once across crashes of the flush transaction.
package downloads
