package supervisor

// State is a supervision lifecycle state.
type State string

const (
	// Running: the handler has been submitted and is being supervised.
	Running State = "running"
	// Acknowledged: the handler succeeded and the message was deleted.
	Acknowledged State = "acknowledged"
	// Abandoned: the handler failed (or never started, or the acknowledge
	// call failed). The message is left to expire.
	Abandoned State = "abandoned"
	// Unsupervised: supervision stopped while the handler was still running.
	Unsupervised State = "unsupervised"
)

// Terminal reports whether s ends a supervision.
func (s State) Terminal() bool {
	return s != Running
}
