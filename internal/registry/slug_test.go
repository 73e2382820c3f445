package registry

import (
	"strings"
	"testing"
)

func TestSlugifyVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		tid  int
		want string
	}{
		{name: "plain", in: "Billing Service", tid: 7, want: "billing-service"},
		{name: "punctuation collapsed", in: "Ops // On-Call!!", tid: 7, want: "ops-on-call"},
		{name: "leading digits rejected", in: "2024 plans", tid: 42, want: "topic-42"},
		{name: "all punctuation", in: "!!! ???", tid: 9, want: "topic-9"},
		{name: "empty", in: "", tid: 3, want: "topic-3"},
		{name: "unicode stripped", in: "Док Prep", tid: 5, want: "prep"},
		{name: "trailing hyphen trimmed", in: "release-", tid: 1, want: "release"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in, tt.tid); got != tt.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugifyBoundsLength(t *testing.T) {
	t.Parallel()
	got := Slugify(strings.Repeat("a", 2*MaxSlugLen), 1)
	if len(got) > MaxSlugLen {
		t.Fatalf("slug length %d exceeds %d", len(got), MaxSlugLen)
	}
	if !ValidSlug(got) {
		t.Fatalf("Slugify produced invalid slug %q", got)
	}
}

func TestValidSlug(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"a", "billing-service", "x9", "topic-42"} {
		if !ValidSlug(ok) {
			t.Fatalf("expected %q valid", ok)
		}
	}
	for _, bad := range []string{"", "9abc", "-abc", "Abc", "a_b", "a b", strings.Repeat("a", MaxSlugLen+1)} {
		if ValidSlug(bad) {
			t.Fatalf("expected %q invalid", bad)
		}
	}
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()
	key := Key(-1001234567890, 42)
	chatID, threadID, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey(%q) error: %v", key, err)
	}
	if chatID != -1001234567890 || threadID != 42 {
		t.Fatalf("ParseKey(%q) = %d, %d", key, chatID, threadID)
	}

	for _, bad := range []string{"", "123", ":42", "123:", "x:1", "1:x"} {
		if _, _, err := ParseKey(bad); err == nil {
			t.Fatalf("expected error for key %q", bad)
		}
	}
}
