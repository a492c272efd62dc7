package model

// BuildState represents the state of a single build attempt as surfaced
// to reviewers through a status update.
type BuildState string

const (
	// BuildStateNotYetRun is a deferred build waiting for a manual trigger.
	BuildStateNotYetRun BuildState = "not_yet_run"
	// BuildStatePending is a build that has been dispatched and is in flight.
	BuildStatePending BuildState = "pending"
	// BuildStateDoneSuccess is a build that completed successfully.
	BuildStateDoneSuccess BuildState = "done_success"
	// BuildStateDoneFailure is a build that completed with a legitimate failure.
	BuildStateDoneFailure BuildState = "done_failure"
	// BuildStateError is an internal or infrastructure failure, distinct
	// from a legitimate build failure.
	BuildStateError BuildState = "error"
	// BuildStateTimeout is a build that exceeded its configured timeout.
	BuildStateTimeout BuildState = "timeout"
)

// IsTerminal returns true if the state is a final result. Terminal states
// are only left via an explicit rerun request.
func (s BuildState) IsTerminal() bool {
	switch s {
	case BuildStateDoneSuccess, BuildStateDoneFailure, BuildStateError, BuildStateTimeout:
		return true
	}
	return false
}

// Valid returns true if s is one of the six known build states.
func (s BuildState) Valid() bool {
	switch s {
	case BuildStateNotYetRun, BuildStatePending, BuildStateDoneSuccess,
		BuildStateDoneFailure, BuildStateError, BuildStateTimeout:
		return true
	}
	return false
}
