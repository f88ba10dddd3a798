// Package device holds the authoritative device and home-mode store.
//
// Devices are simulated smart-home units persisted in SQLite: a closed
// type enumeration, a type-constrained state string, and an open JSON
// property bag. The store is the sole writer of persisted state; the
// control surface and the mode engine are callers, not owners.
//
// Timestamps use a fixed-width UTC format (TimestampLayout) so that SQL
// MAX(last_updated) and plain string comparison agree with chronological
// order. This is what the change notifier's delta detection relies on.
package device
