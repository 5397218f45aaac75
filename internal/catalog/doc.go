// Package catalog owns the persisted data model (feeds, episodes, digests)
// and the episode lifecycle state machine. Every status change flows through
// Advance, RecordFailure, MarkDigested, or RetryFailed; no other code writes
// episode status.
package catalog
