package process

// State represents the lifecycle state of the supervised worker.
type State string

// Worker states.
const (
	StateNotStarted         State = "not_started"         // Never started
	StateStarting           State = "starting"            // Spawned, waiting for readiness
	StateReady              State = "ready"               // Serving requests
	StateStopping           State = "stopping"            // Termination requested
	StateStopped            State = "stopped"             // Terminated on request
	StateFailedToStart      State = "failed_to_start"     // Directory or spawn failure
	StateTimedOutStarting   State = "timed_out_starting"  // No readiness marker before the deadline
	StateExitedUnexpectedly State = "exited_unexpectedly" // Output ended without a stop request
)

// HasProcess reports whether a worker process exists in this state.
func (s State) HasProcess() bool {
	switch s {
	case StateStarting, StateReady, StateStopping:
		return true
	default:
		return false
	}
}

// CanStart reports whether a transition into StateStarting is legal.
func (s State) CanStart() bool {
	return s == StateNotStarted || s == StateStopped || s.IsFailure()
}

// IsFailure reports whether the state is a terminal failure.
func (s State) IsFailure() bool {
	switch s {
	case StateFailedToStart, StateTimedOutStarting, StateExitedUnexpectedly:
		return true
	default:
		return false
	}
}
