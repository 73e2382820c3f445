package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logx "topicbot/pkg/logx"
)

const (
	defaultLockTimeout = 5 * time.Second
	defaultLockRetry   = 100 * time.Millisecond
)

// Store is the single chokepoint for registry access. All mutation goes
// through Mutate, which holds the exclusive file lock for the whole
// read-modify-write cycle and releases it on every exit path.
type Store struct {
	path string
	log  logx.Logger
	lock *flock
}

// Open prepares a store handle for the document at path.
// It does not touch the file; the first Load/Mutate does.
func Open(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		path: path,
		log:  log,
		lock: newFlock(path, defaultLockTimeout, defaultLockRetry),
	}
}

func (s *Store) Path() string { return s.path }

// Load reads, migrates, and validates the document.
//
// Records failing schema validation are quarantined: dropped from the
// returned document and logged individually. Structural failures, a
// version ahead of this build, and a missing migration step are fatal.
func (s *Store) Load() (*Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", s.path, err)
	}
	return s.parse(b)
}

func (s *Store) parse(b []byte) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	ver, err := documentVersion(raw)
	if err != nil {
		return nil, err
	}
	if ver > SupportedVersion {
		return nil, fmt.Errorf("%w: document v%d, supported v%d", ErrUnsupportedVersion, ver, SupportedVersion)
	}
	if ver < SupportedVersion {
		if err := migrate(raw, ver); err != nil {
			return nil, err
		}
		s.log.Info("registry migrated", logx.Int("from", ver), logx.Int("to", SupportedVersion))
	}

	jb, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// Quarantine invalid records instead of failing the whole load.
	for key, rec := range doc.Topics {
		if verr := validateRecord(key, rec); verr != nil {
			s.log.Warn("registry record quarantined", logx.String("key", key), logx.Err(verr))
			delete(doc.Topics, key)
		}
	}
	if doc.Topics == nil {
		doc.Topics = map[string]*Record{}
	}

	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Mutate applies fn to the current document under the exclusive lock and
// persists the result atomically. The document is reloaded after the lock is
// held so fn always observes the latest committed state.
//
// fn returning an error aborts the write; nothing is persisted.
func (s *Store) Mutate(ctx context.Context, fn func(*Document) error) (*Document, error) {
	if err := s.lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.lock.release()

	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// write replaces the document atomically: temp file in the same directory,
// restrictive permissions before and after the rename, indented JSON with a
// trailing newline. A reader never observes a half-written document.
func (s *Store) write(doc *Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("registry: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("registry: chmod temp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("registry: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("registry: rename: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("registry: chmod: %w", err)
	}
	return nil
}

// Init writes a fresh v-current document if none exists yet. It is used by
// setup tooling and tests; a document that already exists is left untouched.
func (s *Store) Init(ctx context.Context, secret string, admins []int64) error {
	if err := s.lock.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.release()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("registry: stat %s: %w", s.path, err)
	}
	doc := &Document{
		Version:        SupportedVersion,
		Admins:         admins,
		Secret:         secret,
		DigestsEnabled: true,
		MaxTopics:      DefaultMaxTopics,
		Topics:         map[string]*Record{},
	}
	return s.write(doc)
}
