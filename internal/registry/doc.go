// Package registry is the persistent store of tracked forum topics.
//
// The whole registry is one JSON document on disk. Concurrent mutation is
// serialized through a sibling lock file, writes are atomic (temp file +
// rename), and older document versions are migrated forward on load.
// Individual records that fail schema validation are quarantined (dropped
// from the loaded document and logged) instead of failing the load.
package registry
