package game

import "time"

// ActionKind enumerates the inputs a client may submit during a match.
type ActionKind string

const (
	ActionMove  ActionKind = "move"
	ActionKick  ActionKind = "kick"
	ActionPass  ActionKind = "pass"
	ActionShoot ActionKind = "shoot"
	ActionIdle  ActionKind = "idle"
)

// KnownKind reports whether the kind is one of the five supported action variants.
func KnownKind(kind ActionKind) bool {
	switch kind {
	case ActionMove, ActionKick, ActionPass, ActionShoot, ActionIdle:
		return true
	default:
		return false
	}
}

// Action is one untrusted client input. Tick and ClientTimestamp come from the
// sender and are advisory only; validation bounds how far they may diverge from
// server truth.
type Action struct {
	MatchID         string
	PlayerID        string
	Tick            uint64
	Kind            ActionKind
	TargetX         float64
	TargetY         float64
	Power           float64
	Direction       float64
	ClientTimestamp time.Time
}

// Outcome reports the synchronous accept/reject decision for a single action.
type Outcome struct {
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
	StateHash string `json:"state_hash,omitempty"`
}
