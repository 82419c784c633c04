package cheat

import (
	"math"
	"sync"
	"time"

	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
	"goalrush/matchcore/internal/logging"
)

// FlagReason identifies which heuristic tripped on an action.
type FlagReason string

const (
	FlagNone           FlagReason = ""
	FlagSpam           FlagReason = "action spam"
	FlagImpossibleKick FlagReason = "impossible kick distance"
	FlagDoubleKick     FlagReason = "double kick"
	FlagPositionDesync FlagReason = "position desync"
)

const (
	// historySize bounds the retained per-player action history.
	historySize = 100
	// spamSampleSize is how many recent actions the spam heuristic inspects.
	spamSampleSize = 10
	// spamMinSpan is the minimum claimed client time the sample must cover.
	spamMinSpan = 1000 * time.Millisecond
	// maxKickDistance is how close a player must be to the ball to kick it.
	maxKickDistance = 50.0
	// doubleKickTicks is the cooldown before the last kicker may kick again.
	doubleKickTicks = 5
	// maxDesyncDistance bounds divergence between predicted and claimed position.
	maxDesyncDistance = 100.0
)

// Clock exposes the current time for escalation decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Decision summarises the outcome of a Check call. Flagged actions are dropped
// but non-fatal unless Forfeit escalates the whole match.
type Decision struct {
	Flagged bool
	Reason  FlagReason
	Forfeit bool
}

// FlagCounters aggregates per-player flag statistics for diagnostics.
type FlagCounters struct {
	Spam           uint64 `json:"spam"`
	ImpossibleKick uint64 `json:"impossible_kick"`
	DoubleKick     uint64 `json:"double_kick"`
	PositionDesync uint64 `json:"position_desync"`
}

// Total sums the individual counters.
func (c FlagCounters) Total() uint64 {
	return c.Spam + c.ImpossibleKick + c.DoubleKick + c.PositionDesync
}

type playerHistory struct {
	// recent is a bounded ring of claimed client timestamps for checked actions.
	recent []time.Time
	next   int
	filled bool

	// flags holds server-side flag times inside the escalation window.
	flags []time.Time
}

func (h *playerHistory) observe(ts time.Time) {
	if len(h.recent) < historySize {
		h.recent = append(h.recent, ts)
		return
	}
	h.recent[h.next] = ts
	h.next = (h.next + 1) % historySize
	h.filled = true
}

// lastN returns up to n most recent claimed timestamps, newest last.
func (h *playerHistory) lastN(n int) []time.Time {
	total := len(h.recent)
	if total == 0 || n <= 0 {
		return nil
	}
	if n > total {
		n = total
	}
	out := make([]time.Time, 0, n)
	start := len(h.recent) - n
	if !h.filled && h.next == 0 {
		return append(out, h.recent[start:]...)
	}
	// Ring is full: walk backwards from the write cursor.
	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + historySize) % historySize
		out = append(out, h.recent[idx])
	}
	// Reverse so the newest entry is last, matching the append-only path.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DetectorOption customises detector construction.
type DetectorOption func(*Detector)

// WithClock overrides the clock used for flag escalation windows.
func WithClock(clock Clock) DetectorOption {
	return func(d *Detector) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// Detector applies the adversarial-input heuristics for one match. History is
// owned per player, per session; nothing is shared across matches.
type Detector struct {
	mu      sync.Mutex
	cfg     config.CheatConfig
	dt      float64
	clock   Clock
	logger  *logging.Logger
	players map[string]*playerHistory
	metrics map[string]FlagCounters
}

// NewDetector builds a detector with the supplied escalation policy. The policy
// thresholds are deliberately configuration, not constants.
func NewDetector(cfg config.CheatConfig, dt float64, logger *logging.Logger, opts ...DetectorOption) *Detector {
	if cfg.FlagLimit <= 0 {
		cfg.FlagLimit = config.DefaultFlagLimit
	}
	if cfg.FlagWindow <= 0 {
		cfg.FlagWindow = config.DefaultFlagWindow
	}
	if dt <= 0 {
		dt = 1.0 / 60.0
	}
	detector := &Detector{
		cfg:     cfg,
		dt:      dt,
		clock:   systemClock{},
		logger:  logger,
		players: make(map[string]*playerHistory),
		metrics: make(map[string]FlagCounters),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(detector)
		}
	}
	return detector
}

// Check evaluates the heuristics for an action that already passed validation.
// The action's claimed timestamp joins the history either way so sustained spam
// cannot hide behind its own flags.
func (d *Detector) Check(action game.Action, state *game.State) Decision {
	if d == nil || state == nil {
		return Decision{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.players[action.PlayerID]
	if history == nil {
		history = &playerHistory{}
		d.players[action.PlayerID] = history
	}
	history.observe(action.ClientTimestamp)

	if reason := d.evaluateLocked(action, state, history); reason != FlagNone {
		return d.registerFlagLocked(action.PlayerID, history, reason)
	}
	return Decision{}
}

func (d *Detector) evaluateLocked(action game.Action, state *game.State, history *playerHistory) FlagReason {
	//1.- Spam: the ten most recent claimed timestamps must span at least a second.
	if sample := history.lastN(spamSampleSize); len(sample) == spamSampleSize {
		oldest, newest := sample[0], sample[len(sample)-1]
		if !oldest.IsZero() && !newest.IsZero() && newest.Sub(oldest) < spamMinSpan {
			return FlagSpam
		}
	}

	index, ok := state.PlayerIndex(action.PlayerID)
	if !ok {
		return FlagNone
	}
	player := state.Players[index]

	//2.- Kicks and shots require proximity to the ball.
	if action.Kind == game.ActionKick || action.Kind == game.ActionShoot {
		if distance(player.Position, state.Ball.Position) > maxKickDistance {
			return FlagImpossibleKick
		}
		//3.- The last kicker cannot kick again inside the cooldown window.
		if state.LastKickerID == action.PlayerID && state.Tick-state.LastKickTick < doubleKickTicks {
			return FlagDoubleKick
		}
	}

	//4.- The claimed position for a move must stay near the server's prediction.
	if action.Kind == game.ActionMove {
		predicted := player.Position.Add(player.Velocity.Scale(d.dt))
		claimed := game.Vector2{X: action.TargetX, Y: action.TargetY}
		if distance(predicted, claimed) > maxDesyncDistance {
			return FlagPositionDesync
		}
	}

	return FlagNone
}

func (d *Detector) registerFlagLocked(playerID string, history *playerHistory, reason FlagReason) Decision {
	counters := d.metrics[playerID]
	switch reason {
	case FlagSpam:
		counters.Spam++
	case FlagImpossibleKick:
		counters.ImpossibleKick++
	case FlagDoubleKick:
		counters.DoubleKick++
	case FlagPositionDesync:
		counters.PositionDesync++
	}
	d.metrics[playerID] = counters

	//1.- Slide the escalation window and count this flag against the policy.
	now := d.clock.Now()
	cutoff := now.Add(-d.cfg.FlagWindow)
	kept := history.flags[:0]
	for _, ts := range history.flags {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	history.flags = append(kept, now)

	decision := Decision{Flagged: true, Reason: reason}
	if len(history.flags) >= d.cfg.FlagLimit {
		decision.Forfeit = true
	}
	if d.logger != nil {
		d.logger.Debug("action flagged",
			logging.String("player_id", playerID),
			logging.String("reason", string(reason)),
			logging.Int("window_flags", len(history.flags)),
			logging.Bool("forfeit", decision.Forfeit),
		)
	}
	return decision
}

// Metrics returns a snapshot of per-player counters for diagnostics.
func (d *Detector) Metrics() map[string]FlagCounters {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.metrics) == 0 {
		return nil
	}
	snapshot := make(map[string]FlagCounters, len(d.metrics))
	for playerID, counters := range d.metrics {
		snapshot[playerID] = counters
	}
	return snapshot
}

// Forget clears history and counters for the given player.
func (d *Detector) Forget(playerID string) {
	if d == nil || playerID == "" {
		return
	}
	d.mu.Lock()
	delete(d.players, playerID)
	delete(d.metrics, playerID)
	d.mu.Unlock()
}

func distance(a, b game.Vector2) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
