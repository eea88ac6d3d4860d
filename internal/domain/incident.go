package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IncidentStatus represents the lifecycle status of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusTriggered     IncidentStatus = "TRIGGERED"
	IncidentStatusAcknowledged  IncidentStatus = "ACKNOWLEDGED"
	IncidentStatusInvestigating IncidentStatus = "INVESTIGATING"
	IncidentStatusEscalated     IncidentStatus = "ESCALATED"
	IncidentStatusResolved      IncidentStatus = "RESOLVED"
	IncidentStatusClosed        IncidentStatus = "CLOSED"
)

// IncidentStatuses lists every status in lifecycle order.
var IncidentStatuses = []IncidentStatus{
	IncidentStatusTriggered,
	IncidentStatusAcknowledged,
	IncidentStatusInvestigating,
	IncidentStatusEscalated,
	IncidentStatusResolved,
	IncidentStatusClosed,
}

// IsValid checks if the status is known.
func (s IncidentStatus) IsValid() bool {
	for _, known := range IncidentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the incident no longer counts as active.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusResolved || s == IncidentStatusClosed
}

// Severity represents the priority of an incident.
type Severity string

// Severity levels.
const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityP1, SeverityP2, SeverityP3, SeverityP4}

type severityInfo struct {
	description string
	ackSLA      time.Duration
	resolveSLA  time.Duration
}

var severityTable = map[Severity]severityInfo{
	SeverityP1: {"Critical", 5 * time.Minute, 60 * time.Minute},
	SeverityP2: {"High", 15 * time.Minute, 240 * time.Minute},
	SeverityP3: {"Medium", 60 * time.Minute, 1440 * time.Minute},
	SeverityP4: {"Low", 240 * time.Minute, 4320 * time.Minute},
}

// IsValid checks if the severity is one of P1..P4.
func (s Severity) IsValid() bool {
	_, ok := severityTable[s]
	return ok
}

// Description returns the human readable name of the severity.
func (s Severity) Description() string {
	return severityTable[s].description
}

// AckSLA returns the time allowed before an incident must be acknowledged.
func (s Severity) AckSLA() time.Duration {
	return severityTable[s].ackSLA
}

// ResolveSLA returns the time allowed before an incident must be resolved.
func (s Severity) ResolveSLA() time.Duration {
	return severityTable[s].resolveSLA
}

// IncidentID is the server-assigned identifier of an incident.
// The upstream service emits numeric ids; the console treats them as opaque strings.
type IncidentID string

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *IncidentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode incident id: %w", err)
		}
		*id = IncidentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode incident id: %w", err)
	}
	*id = IncidentID(n.String())
	return nil
}

func (id IncidentID) String() string {
	return string(id)
}

// Timestamp is a point in time as reported by the incident service.
// The service may omit the zone offset, in which case UTC is assumed.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON parses RFC 3339 and zone-less local date-times.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp format: %q", s)
}

// MarshalJSON writes the timestamp in RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Incident represents a tracked operational issue.
type Incident struct {
	ID              IncidentID     `json:"id"`
	IncidentNumber  string         `json:"incidentNumber"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Severity        Severity       `json:"severity"`
	Status          IncidentStatus `json:"status"`
	Resolution      string         `json:"resolution,omitempty"`
	AssigneeName    string         `json:"assigneeName,omitempty"`
	TeamName        string         `json:"teamName,omitempty"`
	EscalationLevel int            `json:"escalationLevel"`
	SLABreach       bool           `json:"slaBreach"`
	CreatedAt       *Timestamp     `json:"createdAt,omitempty"`
	AcknowledgedAt  *Timestamp     `json:"acknowledgedAt,omitempty"`
	ResolvedAt      *Timestamp     `json:"resolvedAt,omitempty"`
	ClosedAt        *Timestamp     `json:"closedAt,omitempty"`
}

// IsActive reports whether the incident still needs attention.
func (i Incident) IsActive() bool {
	return !i.Status.IsTerminal()
}

// IncidentDraft holds the fields supplied when creating an incident.
type IncidentDraft struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=4000"`
	Severity    Severity `json:"severity" validate:"required,oneof=P1 P2 P3 P4"`
}

// Normalize trims surrounding whitespace from the text fields.
func (d IncidentDraft) Normalize() IncidentDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Severity = Severity(strings.ToUpper(strings.TrimSpace(string(d.Severity))))
	return d
}
