package registry

import (
	"errors"
	"testing"

	logx "topicbot/pkg/logx"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return Open(t.TempDir()+"/registry.json", logx.Nop())
}

func TestMigrateV1ToCurrent(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	doc, err := s.parse([]byte(`{
		"version": 1,
		"admins": [1],
		"secret": "s3cret",
		"digests_enabled": true,
		"max_topics": 10,
		"topics": {
			"100:5": {
				"chat_id": 100, "thread_id": 5,
				"name": "Billing Service",
				"kind": "project",
				"capsule_version": 1,
				"last_report_at": "2026-01-02T09:00:00Z"
			},
			"100:6": {
				"chat_id": 100, "thread_id": 6,
				"slug": "ops",
				"kind": "tracker",
				"status": "snoozed",
				"capsule_version": 2
			}
		}
	}`))
	if err != nil {
		t.Fatalf("parse v1 document: %v", err)
	}
	if doc.Version != SupportedVersion {
		t.Fatalf("Version = %d, want %d", doc.Version, SupportedVersion)
	}

	a := doc.Topic(100, 5)
	if a == nil {
		t.Fatal("record 100:5 missing after migration")
	}
	if a.Slug != "billing-service" {
		t.Fatalf("Slug = %q, want derived from name", a.Slug)
	}
	if a.Status != StatusActive {
		t.Fatalf("Status = %q, want default active", a.Status)
	}
	if a.LastDigestAt == nil {
		t.Fatal("last_report_at was not renamed to last_digest_at")
	}

	b := doc.Topic(100, 6)
	if b == nil {
		t.Fatal("record 100:6 missing after migration")
	}
	if b.Name != "ops" {
		t.Fatalf("Name = %q, want inherited slug", b.Name)
	}
	if b.Status != StatusSnoozed {
		t.Fatalf("Status = %q, existing status must survive", b.Status)
	}
}

func TestMigrateSlugFallback(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	doc, err := s.parse([]byte(`{
		"version": 1,
		"secret": "s",
		"topics": {
			"100:77": {"chat_id": 100, "thread_id": 77, "name": "!!!", "kind": "journal", "capsule_version": 1}
		}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rec := doc.Topic(100, 77)
	if rec == nil {
		t.Fatal("record missing")
	}
	if rec.Slug != "topic-77" {
		t.Fatalf("Slug = %q, want fallback topic-77", rec.Slug)
	}
}

func TestMigrateCurrentVersionIsNoop(t *testing.T) {
	t.Parallel()
	raw := map[string]any{"version": float64(SupportedVersion), "topics": map[string]any{}}
	if err := migrate(raw, SupportedVersion); err != nil {
		t.Fatalf("migrate at current version: %v", err)
	}
}

func TestMigrateNoPath(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	_, err := s.parse([]byte(`{"version": 0, "secret": "s", "topics": {}}`))
	if !errors.Is(err, ErrNoMigrationPath) {
		t.Fatalf("err = %v, want ErrNoMigrationPath", err)
	}
}

func TestParseVersionAhead(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	_, err := s.parse([]byte(`{"version": 99, "secret": "s", "topics": {}}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDocumentVersionForms(t *testing.T) {
	t.Parallel()
	if v, err := documentVersion(map[string]any{"version": "2"}); err != nil || v != 2 {
		t.Fatalf("string version: %d, %v", v, err)
	}
	if _, err := documentVersion(map[string]any{}); err == nil {
		t.Fatal("expected error for missing version")
	}
	if _, err := documentVersion(map[string]any{"version": true}); err == nil {
		t.Fatal("expected error for bad version type")
	}
}
