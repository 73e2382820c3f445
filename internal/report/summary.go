// Package report renders a bounded, human-readable summary of a batch pass
// as Telegram HTML.
package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"topicbot/internal/batch"
	"topicbot/internal/registry"
	"topicbot/pkg/tgui"
)

const (
	// DefaultSoftBudget bounds the accumulated item lines. The hard limit
	// stays tgui.MaxMessageLen.
	DefaultSoftBudget = 3800

	maxErrorLines = 10

	truncMarker = " …[cut]"
)

// Build renders o with the default soft budget.
func Build(o *batch.Outcome) string { return BuildWithBudget(o, DefaultSoftBudget) }

// BuildWithBudget renders the pass summary. Item lines (reported and
// skipped) accumulate against the soft budget; once the next line would
// exceed it, a single "and N more" line replaces the rest. A final pass
// hard-truncates to the platform maximum without leaving a dangling tag.
func BuildWithBudget(o *batch.Outcome, soft int) string {
	if soft <= 0 {
		soft = DefaultSoftBudget
	}
	b := newBoundedLines(soft)

	b.force(string(tgui.B(title(o.Op))))
	b.force(fmt.Sprintf("processed %d · skipped %d · failed %d",
		len(o.Reported), o.SkippedCount(), len(o.Failures)))

	writeReported(b, o)
	writeSkipped(b, o)
	b.finish()

	tail := make([]string, 0, 8)
	if n := len(o.DeliveryFailures); n > 0 {
		tail = append(tail, "", fmt.Sprintf("⚠️ %d %s could not be delivered", n, plural(n, "report", "reports")))
	}
	if len(o.AutoSnoozed) > 0 {
		tail = append(tail, "", "💤 auto-snoozed: "+string(joinCodes(o.AutoSnoozed)))
	}
	if len(o.FlaggedChats) > 0 {
		ids := make([]string, 0, len(o.FlaggedChats))
		for _, id := range o.FlaggedChats {
			ids = append(ids, string(tgui.Code(fmt.Sprint(id))))
		}
		tail = append(tail, "",
			"🚨 "+string(tgui.B("Every topic in these chats failed"))+" — the chat may have been deleted or migrated:",
			strings.Join(ids, ", "))
	}
	tail = append(tail, errorLines(o.Failures)...)

	msg := strings.Join(append(b.lines, tail...), "\n")
	return tgui.TruncHTML(msg, tgui.MaxMessageLen, truncMarker)
}

func title(op registry.Op) string {
	switch op {
	case registry.OpDigest:
		return "Daily digest"
	case registry.OpCheckup:
		return "Topic checkup"
	}
	return "Batch pass"
}

func writeReported(b *boundedLines, o *batch.Outcome) {
	if len(o.Reported) == 0 {
		return
	}
	b.force("")

	// Group by chat, keeping first-appearance order.
	var chats []int64
	byChat := map[int64][]batch.Item{}
	for _, it := range o.Reported {
		if _, ok := byChat[it.ChatID]; !ok {
			chats = append(chats, it.ChatID)
		}
		byChat[it.ChatID] = append(byChat[it.ChatID], it)
	}
	for _, chat := range chats {
		// Keep feeding lines after the budget trips so the trailer's
		// "and N more" count stays accurate.
		b.add(string(tgui.B(fmt.Sprintf("chat %d", chat))))
		for _, it := range byChat[chat] {
			b.add(fmt.Sprintf("%s %s %s (%s)",
				deliveryIcon(it.Delivered), kindLabel(it.Kind),
				tgui.Esc(tgui.TruncRunes(it.Name, 40)), tgui.Code(it.Slug)))
		}
	}
}

func writeSkipped(b *boundedLines, o *batch.Outcome) {
	if o.SkippedCount() == 0 {
		return
	}
	b.force("")
	b.add(string(tgui.B("Skipped")))

	reasons := make([]string, 0, len(o.Skipped))
	for r := range o.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		slugs := o.Skipped[batch.Reason(r)]
		b.add(fmt.Sprintf("• %s (%d): %s", r, len(slugs), joinCodes(slugs)))
	}
}

func errorLines(failures []batch.Failure) []string {
	if len(failures) == 0 {
		return nil
	}
	out := []string{"", string(tgui.B("Errors"))}
	for i, f := range failures {
		if i == maxErrorLines {
			out = append(out, fmt.Sprintf("… and %d more", len(failures)-maxErrorLines))
			break
		}
		out = append(out, fmt.Sprintf("• %s: %s", tgui.Code(f.Slug), tgui.Esc(tgui.TruncRunes(f.Err, 120))))
	}
	return out
}

func deliveryIcon(delivered bool) string {
	if delivered {
		return "✅"
	}
	return "⚠️"
}

func kindLabel(k registry.Kind) string {
	switch k {
	case registry.KindProject:
		return "📌"
	case registry.KindTracker:
		return "📈"
	case registry.KindJournal:
		return "📓"
	default:
		return "•"
	}
}

func joinCodes(ss []string) tgui.H {
	parts := make([]tgui.H, 0, len(ss))
	for _, s := range ss {
		parts = append(parts, tgui.Code(s))
	}
	return tgui.JoinH(", ", parts...)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// boundedLines accumulates lines until the soft budget would be exceeded,
// then records how many lines were dropped so finish() can add a single
// "and N more" trailer instead of truncating mid-line.
type boundedLines struct {
	lines   []string
	used    int
	budget  int
	stopped bool
	dropped int
}

func newBoundedLines(budget int) *boundedLines {
	return &boundedLines{budget: budget}
}

// force appends regardless of budget (headers, separators).
func (b *boundedLines) force(line string) {
	b.lines = append(b.lines, line)
	b.used += utf8.RuneCountInString(line) + 1
}

// add appends line if it fits; once the budget is hit every further add is
// counted as dropped for the "and N more" trailer.
func (b *boundedLines) add(line string) bool {
	if b.stopped {
		b.dropped++
		return false
	}
	n := utf8.RuneCountInString(line) + 1
	if b.used+n > b.budget {
		b.stopped = true
		b.dropped++
		return false
	}
	b.lines = append(b.lines, line)
	b.used += n
	return true
}

func (b *boundedLines) finish() {
	if b.dropped > 0 {
		b.lines = append(b.lines, fmt.Sprintf("… and %d more", b.dropped))
	}
}
