package app

import (
	"context"
	"fmt"
	"time"

	"topicbot/internal/dispatch"
	"topicbot/internal/registry"
	"topicbot/pkg/tgui"
)

// Default collaborators. Real deployments plug their own content
// extraction in through Collaborators; these built-ins render a minimal
// report straight from the record so the pipeline works out of the box.

func (a *App) installDefaultCollaborators() {
	if a.collab.Digest == nil {
		a.collab.Digest = a.defaultDigest
	}
	if a.collab.Checkup == nil {
		a.collab.Checkup = a.defaultCheckup
	}
	// Activity stays nil by default: the record's own timestamps decide.
}

// secret returns the registry's signing secret, cached after first read.
func (a *App) secret() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cachedSecret == "" {
		if doc, err := a.store.Load(); err == nil {
			a.cachedSecret = doc.Secret
		}
	}
	return a.cachedSecret
}

func (a *App) defaultDigest(ctx context.Context, rec registry.Record) (*dispatch.Payload, error) {
	_ = ctx
	text := string(tgui.JoinH("\n",
		tgui.B("Daily digest — "+rec.Name),
		tgui.Raw("topic "+string(tgui.Code(rec.Slug))+" · kind "+string(tgui.Code(string(rec.Kind)))),
		lastSeenLine(rec),
	))
	return &dispatch.Payload{Text: text, Buttons: a.topicButtons(rec)}, nil
}

func (a *App) defaultCheckup(ctx context.Context, rec registry.Record) (*dispatch.Payload, error) {
	_ = ctx
	text := string(tgui.JoinH("\n",
		tgui.B("Checkup — "+rec.Name),
		tgui.Raw("capsule v"+fmt.Sprint(rec.CapsuleVersion)+" · status "+string(tgui.Code(string(rec.Status)))),
		lastSeenLine(rec),
	))
	return &dispatch.Payload{Text: text, Buttons: a.topicButtons(rec)}, nil
}

func lastSeenLine(rec registry.Record) tgui.H {
	if rec.LastActivityAt == nil {
		return tgui.I("no activity recorded")
	}
	return tgui.I("last activity " + time.Since(*rec.LastActivityAt).Round(time.Minute).String() + " ago")
}

// topicButtons attaches the standard signed actions. Signing failures are
// skipped silently; a report without buttons is still a report.
func (a *App) topicButtons(rec registry.Record) []dispatch.Button {
	secret := a.secret()
	if secret == "" {
		return nil
	}
	var out []dispatch.Button
	for _, spec := range []struct{ label, action string }{
		{"Snooze 7d", "snooze"},
		{"Archive", "archive"},
	} {
		data, err := tgui.SignAction(tgui.Action{
			Namespace: "topic",
			Action:    spec.action,
			Subject:   rec.Slug,
			ChatID:    rec.ChatID,
			ThreadID:  rec.ThreadID,
		}, secret)
		if err != nil {
			continue
		}
		out = append(out, dispatch.Button{Label: spec.label, Data: data})
	}
	return out
}
