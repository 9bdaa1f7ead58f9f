// ABOUTME: Package documentation for the store package.
// ABOUTME: Describes the persistence layer for agent session bindings.

// Package store provides durable persistence for agent session bindings:
// which provider is active for each user and each provider's last known
// resume token and process id.
//
// Two implementations exist: SQLiteStore for production use and MockStore
// for tests. Binding rows are created lazily on first contact and are never
// deleted by this subsystem.
package store
