package domain

// TransitionKind names a lifecycle action.
type TransitionKind string

// Transition kinds.
const (
	TransitionAcknowledge TransitionKind = "acknowledge"
	TransitionResolve     TransitionKind = "resolve"
	TransitionClose       TransitionKind = "close"
	TransitionEscalate    TransitionKind = "escalate"
)

// IsValid checks if the transition kind is known.
func (k TransitionKind) IsValid() bool {
	switch k {
	case TransitionAcknowledge, TransitionResolve, TransitionClose, TransitionEscalate:
		return true
	}
	return false
}

// RequiresResolution reports whether the transition carries a resolution text.
func (k TransitionKind) RequiresResolution() bool {
	return k == TransitionResolve
}

// lifecycle maps a status to the transitions the console offers from it.
// Every target differs from its source status.
var lifecycle = map[IncidentStatus]map[TransitionKind]IncidentStatus{
	IncidentStatusTriggered: {
		TransitionAcknowledge: IncidentStatusAcknowledged,
		TransitionEscalate:    IncidentStatusEscalated,
	},
	IncidentStatusAcknowledged: {
		TransitionResolve:  IncidentStatusResolved,
		TransitionEscalate: IncidentStatusEscalated,
	},
	IncidentStatusInvestigating: {
		TransitionEscalate: IncidentStatusEscalated,
	},
	IncidentStatusResolved: {
		TransitionClose: IncidentStatusClosed,
	},
}

// transitionOrder keeps AllowedTransitions deterministic.
var transitionOrder = []TransitionKind{
	TransitionAcknowledge,
	TransitionResolve,
	TransitionClose,
	TransitionEscalate,
}

// NextStatus returns the status an incident reaches when kind is applied from status.
// The second result is false when the transition is not offered from status.
func NextStatus(from IncidentStatus, kind TransitionKind) (IncidentStatus, bool) {
	next, ok := lifecycle[from][kind]
	return next, ok
}

// CanTransition reports whether kind is offered from status.
func CanTransition(from IncidentStatus, kind TransitionKind) bool {
	_, ok := NextStatus(from, kind)
	return ok
}

// AllowedTransitions returns the transitions offered from status.
// CLOSED and ESCALATED offer none.
func AllowedTransitions(from IncidentStatus) []TransitionKind {
	kinds := make([]TransitionKind, 0, 2)
	for _, kind := range transitionOrder {
		if CanTransition(from, kind) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
