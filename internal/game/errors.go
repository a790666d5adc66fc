package game

import "fmt"

// GuardError is a local precondition failure. It never reaches the network
// and never sets an operation's busy flag.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string {
	return e.Reason
}

var (
	ErrNotAuthenticated = &GuardError{"you must be signed in to do that"}
	ErrNoActiveRoom     = &GuardError{"you are not in an active room"}
	ErrNotHost          = &GuardError{"only the host can do that"}
	ErrRoundNotActive   = &GuardError{"the round is not in progress"}
	ErrRoundNotOver     = &GuardError{"the current round has not shown its results yet"}
	ErrNoRoundInfo      = &GuardError{"room or round information is incomplete"}
)

// RemoteError is a completed service call that came back with an error. The
// Detail is the user-facing message extracted from the response body when the
// service supplied one.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("room service error (status %d)", e.StatusCode)
}

// userMessage maps any failure to the message retained for display. Remote
// errors surface their detail, everything else gets the generic fallback.
func userMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if re, ok := err.(*RemoteError); ok && re.Detail != "" {
		return re.Detail
	}
	if ge, ok := err.(*GuardError); ok {
		return ge.Reason
	}
	return fallback
}
