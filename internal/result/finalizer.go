package result

import (
	"errors"
	"time"

	"goalrush/matchcore/internal/game"
)

// Status classifies how a match reached its result.
type Status string

const (
	// StatusCompleted is the normal time-expiry outcome.
	StatusCompleted Status = "completed"
	// StatusForfeit covers disconnect-past-grace and cheat escalation outcomes.
	StatusForfeit Status = "forfeit"
	// StatusDraw is emitted for tied scores under the draw tie policy.
	StatusDraw Status = "draw"
	// StatusVoid is emitted when no trustworthy result exists: either a fatal
	// internal invariant violation, or a tie under the void tie policy.
	StatusVoid Status = "void"
)

// TiePolicy decides what a tied final score produces. The source material does
// not pin this down, so it stays a configuration input rather than a guess.
type TiePolicy string

const (
	TiePolicyDraw TiePolicy = "draw"
	TiePolicyVoid TiePolicy = "void"
)

// ErrUnknownTiePolicy is returned when the configured policy is not recognised.
var ErrUnknownTiePolicy = errors.New("unknown tie policy")

// ParseTiePolicy maps the configuration string onto a TiePolicy.
func ParseTiePolicy(raw string) (TiePolicy, error) {
	switch TiePolicy(raw) {
	case TiePolicyDraw:
		return TiePolicyDraw, nil
	case TiePolicyVoid:
		return TiePolicyVoid, nil
	default:
		return TiePolicyDraw, ErrUnknownTiePolicy
	}
}

// MatchResult is the immutable, hashable record handed to the settlement
// collaborator. It is created exactly once per match.
type MatchResult struct {
	MatchID         string    `json:"match_id"`
	Status          Status    `json:"status"`
	WinnerID        string    `json:"winner_id,omitempty"`
	LoserID         string    `json:"loser_id,omitempty"`
	FinalScore      [2]int    `json:"final_score"`
	DurationSeconds float64   `json:"duration_seconds"`
	StateHashChain  string    `json:"state_hash_chain"`
	Reason          string    `json:"reason,omitempty"`
	FinalizedAt     time.Time `json:"finalized_at"`
}

// Finalizer converts terminal match state into a MatchResult. It is pure given
// the terminal state; it does not sign, persist, or decide reward amounts.
type Finalizer struct {
	tiePolicy TiePolicy
	total     time.Duration
	now       func() time.Time
}

// FinalizerOption customises finalizer construction.
type FinalizerOption func(*Finalizer)

// WithFinalizerClock overrides the timestamp source, primarily for tests.
func WithFinalizerClock(clock func() time.Time) FinalizerOption {
	return func(f *Finalizer) {
		if clock != nil {
			f.now = clock
		}
	}
}

// NewFinalizer constructs a finalizer for matches of the given total duration.
func NewFinalizer(tiePolicy TiePolicy, total time.Duration, opts ...FinalizerOption) *Finalizer {
	finalizer := &Finalizer{
		tiePolicy: tiePolicy,
		total:     total,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(finalizer)
		}
	}
	return finalizer
}

// Finalize computes the result for a match that expired naturally.
func (f *Finalizer) Finalize(state *game.State, hashChain string) MatchResult {
	if f == nil || state == nil {
		return MatchResult{Status: StatusVoid, Reason: "missing terminal state"}
	}
	res := MatchResult{
		MatchID:         state.MatchID,
		Status:          StatusCompleted,
		FinalScore:      state.Score,
		DurationSeconds: f.elapsed(state),
		StateHashChain:  hashChain,
		FinalizedAt:     f.now().UTC(),
	}

	home, away := state.Score[game.HomeSide], state.Score[game.AwaySide]
	switch {
	case home > away:
		res.WinnerID = state.Players[game.HomeSide].ID
		res.LoserID = state.Players[game.AwaySide].ID
	case away > home:
		res.WinnerID = state.Players[game.AwaySide].ID
		res.LoserID = state.Players[game.HomeSide].ID
	default:
		//1.- Tied scores defer to the configured policy instead of a hard-coded rule.
		if f.tiePolicy == TiePolicyVoid {
			res.Status = StatusVoid
			res.Reason = "tied score voided by policy"
		} else {
			res.Status = StatusDraw
		}
	}
	return res
}

// Forfeit produces a result awarding the match to the remaining player.
func (f *Finalizer) Forfeit(state *game.State, winnerID, reason, hashChain string) MatchResult {
	if f == nil || state == nil {
		return MatchResult{Status: StatusVoid, Reason: "missing terminal state"}
	}
	res := MatchResult{
		MatchID:         state.MatchID,
		Status:          StatusForfeit,
		WinnerID:        winnerID,
		FinalScore:      state.Score,
		DurationSeconds: f.elapsed(state),
		StateHashChain:  hashChain,
		Reason:          reason,
		FinalizedAt:     f.now().UTC(),
	}
	for i := range state.Players {
		if state.Players[i].ID != winnerID {
			res.LoserID = state.Players[i].ID
		}
	}
	return res
}

// Void produces the explicit no-result record for fatal internal failures. No
// fabricated score ever leaves the server.
func (f *Finalizer) Void(matchID, reason string) MatchResult {
	now := time.Now
	if f != nil && f.now != nil {
		now = f.now
	}
	return MatchResult{
		MatchID:     matchID,
		Status:      StatusVoid,
		Reason:      reason,
		FinalizedAt: now().UTC(),
	}
}

func (f *Finalizer) elapsed(state *game.State) float64 {
	elapsed := f.total - state.TimeRemaining
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Seconds()
}
