package registry

import (
	"encoding/json"
	"strconv"
	"unicode/utf8"
)

// validateRecord checks one record against the full schema.
// key is the map key the record was stored under.
func validateRecord(key string, r *Record) error {
	if r == nil {
		return invalid(key, "record", "nil record")
	}
	if r.ChatID == 0 {
		return invalid(key, "chat_id", "must be non-zero")
	}
	if r.ThreadID < 0 {
		return invalid(key, "thread_id", "must be >= 0")
	}
	if r.Key() != key {
		return invalid(key, "key", "does not match chat_id:thread_id ("+r.Key()+")")
	}
	if !ValidSlug(r.Slug) {
		return invalid(key, "slug", "must match ^[a-z][a-z0-9-]{0,"+strconv.Itoa(MaxSlugLen-1)+"}$")
	}
	if r.Name == "" {
		return invalid(key, "name", "must not be empty")
	}
	if utf8.RuneCountInString(r.Name) > MaxNameRunes {
		return invalid(key, "name", "longer than "+strconv.Itoa(MaxNameRunes)+" runes")
	}
	if !r.Kind.Valid() {
		return invalid(key, "kind", "unknown kind "+string(r.Kind))
	}
	if !r.Status.Valid() {
		return invalid(key, "status", "unknown status "+string(r.Status))
	}
	if r.CapsuleVersion < 1 {
		return invalid(key, "capsule_version", "must be >= 1")
	}
	if r.SilentRuns < 0 {
		return invalid(key, "silent_runs", "must be >= 0")
	}
	if r.LastDeliveryError != nil && len(*r.LastDeliveryError) > MaxDeliveryErrorLen {
		return invalid(key, "last_delivery_error", "longer than "+strconv.Itoa(MaxDeliveryErrorLen)+" bytes")
	}
	if len(r.Extras) > 0 {
		b, err := json.Marshal(r.Extras)
		if err != nil {
			return invalid(key, "extras", "not serializable")
		}
		if len(b) > MaxExtrasBytes {
			return invalid(key, "extras", "serialized size exceeds "+strconv.Itoa(MaxExtrasBytes)+" bytes")
		}
	}
	return nil
}

// validateDocument checks document-level invariants. It assumes records have
// already been validated (and invalid ones quarantined).
func validateDocument(d *Document) error {
	if d.Version != SupportedVersion {
		return invalid("", "version", "expected "+strconv.Itoa(SupportedVersion)+", got "+strconv.Itoa(d.Version))
	}
	if d.Secret == "" {
		return invalid("", "secret", "must not be empty")
	}
	if d.MaxTopics < 0 {
		return invalid("", "max_topics", "must be >= 0")
	}
	limit := d.MaxTopics
	if limit == 0 {
		limit = DefaultMaxTopics
	}
	if len(d.Topics) > limit {
		return invalid("", "topics", "record count "+strconv.Itoa(len(d.Topics))+" exceeds cap "+strconv.Itoa(limit))
	}
	return nil
}

// Cap returns the effective topic cap.
func (d *Document) Cap() int {
	if d.MaxTopics > 0 {
		return d.MaxTopics
	}
	return DefaultMaxTopics
}
