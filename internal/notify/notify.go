// Package notify announces incident transitions made from the console to chat channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bissquit/incident-console/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TransitionEvent describes a transition the incident service accepted.
type TransitionEvent struct {
	Kind     domain.TransitionKind
	From     domain.IncidentStatus
	Incident domain.Incident // as returned by the incident service
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers transition events.
type Notifier interface {
	Notify(ctx context.Context, event TransitionEvent) error
}

// Render formats an event for a chat channel.
func Render(event TransitionEvent) Message {
	inc := event.Incident
	caser := cases.Title(language.English)

	ref := inc.IncidentNumber
	if ref == "" {
		ref = "#" + inc.ID.String()
	}

	subject := fmt.Sprintf("[%s] %s: %s", inc.Severity, ref, caser.String(string(inc.Status)))

	var body strings.Builder
	fmt.Fprintf(&body, "**%s**\n\n", inc.Title)
	fmt.Fprintf(&body, "%s → %s (%s)\n", humanStatus(caser, event.From), humanStatus(caser, inc.Status), event.Kind)
	if desc := inc.Severity.Description(); desc != "" {
		fmt.Fprintf(&body, "Severity: %s (%s)\n", inc.Severity, desc)
	}
	if inc.AssigneeName != "" {
		fmt.Fprintf(&body, "Assignee: %s\n", inc.AssigneeName)
	}
	if inc.TeamName != "" {
		fmt.Fprintf(&body, "Team: %s\n", inc.TeamName)
	}
	if inc.Resolution != "" && event.Kind == domain.TransitionResolve {
		fmt.Fprintf(&body, "Resolution: %s\n", inc.Resolution)
	}
	if inc.Status == domain.IncidentStatusEscalated {
		fmt.Fprintf(&body, "Escalation level: %d\n", inc.EscalationLevel)
	}

	return Message{
		Subject: subject,
		Body:    strings.TrimRight(body.String(), "\n"),
	}
}

// humanStatus title-cases a status. A Caser is stateful, so callers pass their own.
func humanStatus(caser cases.Caser, s domain.IncidentStatus) string {
	if s == "" {
		return "Unknown"
	}
	return caser.String(string(s))
}
