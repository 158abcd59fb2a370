package application

import "fmt"

type Action string

const (
	ActionApprove      Action = "approve"
	ActionDiscard      Action = "discard"
	ActionClaim        Action = "claim"
	ActionCancel       Action = "cancel"
	ActionMarkSent     Action = "mark_sent"
	ActionRequeue      Action = "requeue"
	ActionFail         Action = "fail"
	ActionRedraft      Action = "redraft"
	ActionRetry        Action = "retry"
	ActionRecoverStuck Action = "recover_stuck"
)

type transition struct {
	from Status
	to   Status
}

var transitions = map[Action]transition{
	ActionApprove:      {from: StatusDraft, to: StatusReady},
	ActionDiscard:      {from: StatusDraft, to: StatusCancelled},
	ActionClaim:        {from: StatusReady, to: StatusSending},
	ActionCancel:       {from: StatusReady, to: StatusCancelled},
	ActionMarkSent:     {from: StatusSending, to: StatusSent},
	ActionRequeue:      {from: StatusSending, to: StatusReady},
	ActionFail:         {from: StatusSending, to: StatusFailed},
	ActionRedraft:      {from: StatusCancelled, to: StatusDraft},
	ActionRetry:        {from: StatusFailed, to: StatusReady},
	ActionRecoverStuck: {from: StatusSending, to: StatusReady},
}

// ErrInvalidTransition is returned when an action does not apply to the
// current status.
type ErrInvalidTransition struct {
	Action Action
	From   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("action %s not allowed from status %s", e.Action, e.From)
}

// Transition resolves the expected source status and the target status for
// an action. current is the status the caller observed; the store re-checks
// it with a conditional update.
func Transition(action Action, current Status) (from, to Status, err error) {
	t, ok := transitions[action]
	if !ok || t.from != current {
		return "", "", ErrInvalidTransition{Action: action, From: current}
	}
	return t.from, t.to, nil
}

// CanTransition reports whether any action moves from -> to.
func CanTransition(from, to Status) bool {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}
