package registry

import (
	"fmt"
	"strconv"
)

// A migration step rewrites the raw document from version v to v+1.
// Steps operate on the decoded JSON tree, before strict struct decoding,
// so they can add, rename, and default fields freely.
type migrationStep func(doc map[string]any) error

// migrations maps source version -> step to the next version.
// A missing entry for a required transition fails the load outright;
// partial migration is never persisted.
var migrations = map[int]migrationStep{
	1: migrateV1toV2,
	2: migrateV2toV3,
}

// migrate walks the document forward to SupportedVersion in place.
func migrate(doc map[string]any, from int) error {
	for v := from; v < SupportedVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("%w: v%d -> v%d", ErrNoMigrationPath, v, v+1)
		}
		if err := step(doc); err != nil {
			return fmt.Errorf("migration v%d -> v%d: %w", v, v+1, err)
		}
		doc["version"] = float64(v + 1)
	}
	return nil
}

func rawTopics(doc map[string]any) map[string]any {
	t, _ := doc["topics"].(map[string]any)
	return t
}

// migrateV1toV2 introduces slugs and explicit status.
//
//   - records without a slug get one derived from the name (fallback
//     "topic-<threadID>")
//   - records without a name inherit their slug as the display name
//   - missing status defaults to active
func migrateV1toV2(doc map[string]any) error {
	for key, v := range rawTopics(doc) {
		rec, ok := v.(map[string]any)
		if !ok {
			continue // structurally broken; strict decode will reject later
		}
		name, _ := rec["name"].(string)
		slug, _ := rec["slug"].(string)
		if slug == "" {
			threadID := 0
			if _, tid, err := ParseKey(key); err == nil {
				threadID = tid
			}
			slug = Slugify(name, threadID)
			rec["slug"] = slug
		}
		if name == "" {
			rec["name"] = slug
		}
		if _, ok := rec["status"].(string); !ok {
			rec["status"] = string(StatusActive)
		}
	}
	return nil
}

// migrateV2toV3 adds the silent-runs counter and extras map, and renames
// last_report_at to last_digest_at.
func migrateV2toV3(doc map[string]any) error {
	for _, v := range rawTopics(doc) {
		rec, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := rec["silent_runs"]; !ok {
			rec["silent_runs"] = float64(0)
		}
		if _, ok := rec["extras"]; !ok {
			rec["extras"] = map[string]any{}
		}
		if ts, ok := rec["last_report_at"]; ok {
			if _, exists := rec["last_digest_at"]; !exists {
				rec["last_digest_at"] = ts
			}
			delete(rec, "last_report_at")
		}
	}
	return nil
}

// documentVersion extracts the integer version field from the raw tree.
func documentVersion(doc map[string]any) (int, error) {
	v, ok := doc["version"]
	if !ok {
		return 0, fmt.Errorf("%w: missing version field", ErrCorrupt)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: bad version %q", ErrCorrupt, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: bad version type %T", ErrCorrupt, v)
	}
}
