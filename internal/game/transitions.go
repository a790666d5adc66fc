package game

import (
	"time"

	"github.com/bastagame/basta-client/internal"
)

// =============================================================================
// ROUND STATE MACHINE
// =============================================================================

// Transition is a structured state-change event. Transitions only fire off
// server-confirmed state (a service response installing a snapshot, or a
// realtime room event), never off a local action call succeeding.
type Transition struct {
	RoomId      string
	From        internal.RoomStatus
	To          internal.RoomStatus
	RoundNumber int
	Letter      string
	At          time.Time
}

// TransitionListener observes state changes for UI/telemetry. It is invoked
// outside the coordinator's lock.
type TransitionListener func(Transition)

// legalTransitions is the round lifecycle:
//
//	waiting -> in_progress              host started the game
//	in_progress -> round_over_results   someone's BASTA was accepted
//	round_over_results -> in_progress   host advanced to the next round
//	round_over_results -> finished      server reports no further rounds
var legalTransitions = map[internal.RoomStatus][]internal.RoomStatus{
	internal.StatusWaiting:          {internal.StatusInProgress},
	internal.StatusInProgress:       {internal.StatusRoundOverResults},
	internal.StatusRoundOverResults: {internal.StatusInProgress, internal.StatusFinished},
	internal.StatusFinished:         {},
}

// IsLegalTransition reports whether the state machine defines a move between
// two statuses. The server is authoritative, so reconciliation still applies
// an out-of-band status; this check only drives logging and observability.
func IsLegalTransition(from, to internal.RoomStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
