package console

import (
	"errors"
	"fmt"

	"github.com/bissquit/incident-console/internal/domain"
)

// Controller errors.
var (
	ErrInvalidTransition = errors.New("transition not offered for the current status")
	ErrIncidentNotInView = errors.New("incident is not in the displayed collection")
)

// InvalidTransitionError is returned when a transition is requested that the
// lifecycle does not offer from the incident's displayed status.
// No request is sent to the incident service in that case.
type InvalidTransitionError struct {
	ID   domain.IncidentID
	From domain.IncidentStatus
	Kind domain.TransitionKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("incident %s: cannot %s from %s", e.ID, e.Kind, e.From)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// RefreshError reports a failed refresh. The displayed collection was kept.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh incidents: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
