package leave

import (
	"errors"
	"fmt"
)

type Event string

const (
	EventForward Event = "forward"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
)

var (
	// ErrAlreadyTerminal is returned when a second decision races a first one;
	// callers translate it to a conflict rather than a validation failure.
	ErrAlreadyTerminal   = errors.New("request already decided")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// transitions is the full state machine. Approved requests may still be
// rejected, which revokes the approval and restores what it debited.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventForward: StatusForwarded,
		EventReject:  StatusRejected,
	},
	StatusForwarded: {
		EventApprove: StatusApproved,
		EventReject:  StatusRejected,
	},
	StatusApproved: {
		EventReject: StatusRejected,
	},
}

// NextStatus resolves the status an event moves a request to, or an error
// describing why the event is not allowed from the current status.
func NextStatus(current Status, event Event) (Status, error) {
	next, ok := transitions[current][event]
	if ok {
		return next, nil
	}
	if current == StatusRejected || (current == StatusApproved && event == EventApprove) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyTerminal, current)
	}
	return "", fmt.Errorf("%w: cannot %s a %s request", ErrInvalidTransition, event, current)
}
