package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt means the document could not be parsed at all.
	ErrCorrupt = errors.New("registry: corrupt store")

	// ErrUnsupportedVersion means the stored document is newer than this
	// build supports. Refusing to load protects a newer writer's data.
	ErrUnsupportedVersion = errors.New("registry: unsupported document version")

	// ErrNoMigrationPath means a required version transition has no
	// registered migration step. This is a build defect, not a data defect.
	ErrNoMigrationPath = errors.New("registry: no migration path")

	// ErrLockTimeout means exclusive access could not be acquired in time.
	// It is fatal to the one mutation, never silently swallowed.
	ErrLockTimeout = errors.New("registry: lock acquisition timed out")

	// ErrTopicCap means a mutation would push the record count past the
	// document's configured cap.
	ErrTopicCap = errors.New("registry: topic cap reached")
)

// ValidationError describes why a single record (or the document) failed
// schema validation. Record-level failures are quarantined on load.
type ValidationError struct {
	Key   string // empty for document-level failures
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("registry: document invalid: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("registry: record %s invalid: %s: %s", e.Key, e.Field, e.Msg)
}

func invalid(key, field, msg string) error {
	return &ValidationError{Key: key, Field: field, Msg: msg}
}
