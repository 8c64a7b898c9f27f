package dispatch

import (
	"log/slog"

	"mercator-hq/prism/pkg/routing"
)

var transitions = map[routing.State][]routing.State{
	routing.StateInit:      {routing.StateSelecting},
	routing.StateSelecting: {routing.StateCalling, routing.StateFailed},
	routing.StateCalling:   {routing.StateCalling, routing.StateStreaming, routing.StateComplete, routing.StateFailed},
	routing.StateStreaming: {routing.StateComplete, routing.StateFailed},
}

// canTransition reports whether from -> to is a legal lifecycle step.
func canTransition(from, to routing.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// advance moves d to the next state. Illegal transitions leave the state
// unchanged and are logged.
func advance(d *routing.Decision, to routing.State) error {
	if !canTransition(d.State, to) {
		err := &TransitionError{From: d.State, To: to}
		slog.Error("rejected dispatch state transition",
			"request_id", d.RequestID,
			"from", d.State,
			"to", to,
		)
		return err
	}
	d.State = to
	return nil
}
