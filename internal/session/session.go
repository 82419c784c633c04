// Package session owns the per-match simulation loop. Each session is the
// single writer for its match state: connections enqueue validated actions,
// the tick loop applies them, advances physics, detects goals, and finalizes
// the match into a result exactly once.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"goalrush/matchcore/internal/audit"
	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/cheat"
	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/physics"
	"goalrush/matchcore/internal/result"
	"goalrush/matchcore/internal/rules"
	"goalrush/matchcore/internal/settle"
)

// Phase tracks the lifecycle of a match session.
type Phase int32

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseEnded
)

// String renders the phase for logs and diagnostics payloads.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionEnded is returned for submissions after finalization.
	ErrSessionEnded = errors.New("match session already ended")
	// ErrSessionNotRunning is returned for submissions before kickoff.
	ErrSessionNotRunning = errors.New("match session not running")
	// ErrUnknownPlayer rejects actions from identities outside the match.
	ErrUnknownPlayer = errors.New("player does not belong to this match")
	// ErrInboxFull signals a dropped action during overload; the sender
	// receives no acknowledgment for it.
	ErrInboxFull = errors.New("action inbox full")
)

// Stats is the diagnostics view of one session.
type Stats struct {
	MatchID  string              `json:"match_id"`
	Phase    string              `json:"phase"`
	Tick     uint64              `json:"tick"`
	Score    [2]int              `json:"score"`
	Accepted uint64              `json:"actions_accepted"`
	Rejected uint64              `json:"actions_rejected"`
	Flagged  uint64              `json:"actions_flagged"`
	Ticks    TickMetricsSnapshot `json:"ticks"`
}

// Option customises session construction.
type Option func(*Session)

// WithSessionClock overrides the wall clock, enabling deterministic tests.
func WithSessionClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditWriter attaches an audit bundle sink to the session.
func WithAuditWriter(writer *audit.Writer) Option {
	return func(s *Session) { s.audit = writer }
}

// WithSettleStream routes the final result onto the settlement stream.
func WithSettleStream(stream *settle.Stream) Option {
	return func(s *Session) { s.settle = stream }
}

// Session simulates one match. All state mutation happens under mu, either on
// the tick goroutine or on a submission path that only reads the state.
type Session struct {
	mu  sync.Mutex
	cfg *config.Config

	state     *game.State
	validator *rules.Validator
	detector  *cheat.Detector
	physics   *physics.Simulator
	finalizer *result.Finalizer

	broadcaster *broadcast.Broadcaster
	audit       *audit.Writer
	settle      *settle.Stream
	logger      *logging.Logger

	inbox   chan game.Action
	loop    *Loop
	monitor *TickMonitor
	cancel  context.CancelFunc
	doneCh  chan struct{}

	phase     Phase
	hashChain string
	absent    map[string]time.Time
	final     result.MatchResult
	hasFinal  bool

	accepted uint64
	rejected uint64
	flagged  uint64

	now func() time.Time
}

// NewSession builds a pending session for the given pairing. Start must be
// called before any action is accepted.
func NewSession(cfg *config.Config, matchID, homeID, awayID string, broadcaster *broadcast.Broadcaster, logger *logging.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if matchID == "" || homeID == "" || awayID == "" || homeID == awayID {
		return nil, errors.New("match requires two distinct player identities")
	}
	tiePolicy, err := result.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.L()
	}
	dt := cfg.TickInterval().Seconds()
	session := &Session{
		cfg:         cfg,
		state:       game.NewState(matchID, homeID, awayID, cfg.Field, cfg.MatchDuration),
		validator:   rules.NewValidator(cfg.Field),
		detector:    cheat.NewDetector(cfg.Cheat, dt, logger),
		physics:     physics.NewSimulator(cfg.Field),
		finalizer:   result.NewFinalizer(tiePolicy, cfg.MatchDuration),
		broadcaster: broadcaster,
		logger:      logger.With(logging.String("match_id", matchID)),
		inbox:       make(chan game.Action, cfg.InboxSize),
		monitor:     NewTickMonitor(cfg.TickInterval()),
		doneCh:      make(chan struct{}),
		absent:      make(map[string]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}
	return session, nil
}

// MatchID returns the identifier the session simulates.
func (s *Session) MatchID() string {
	if s == nil || s.state == nil {
		return ""
	}
	return s.state.MatchID
}

// Start transitions the session to running and launches the tick loop.
func (s *Session) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("nil session")
	}
	s.mu.Lock()
	if s.phase != PhasePending {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.phase = PhaseRunning
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loop = NewLoop(s.cfg.TickRate, s.Step)
	s.mu.Unlock()

	s.appendEvent(0, audit.EventLifecycle, map[string]string{"phase": "running"})
	s.logger.Info("match started",
		logging.String("home_id", s.state.Players[game.HomeSide].ID),
		logging.String("away_id", s.state.Players[game.AwaySide].ID),
		logging.Int("tick_rate", s.cfg.TickRate),
	)
	s.loop.Start(loopCtx)
	return nil
}

// Submit validates one client action and, if accepted, queues it for the next
// tick. The returned outcome is the synchronous accept/reject answer for the
// sender; flagged actions are dropped without affecting state.
func (s *Session) Submit(action game.Action) (game.Outcome, error) {
	if s == nil {
		return game.Outcome{}, errors.New("nil session")
	}

	s.mu.Lock()
	switch s.phase {
	case PhaseEnded:
		s.mu.Unlock()
		return game.Outcome{}, ErrSessionEnded
	case PhasePending:
		s.mu.Unlock()
		return game.Outcome{}, ErrSessionNotRunning
	}
	if _, ok := s.state.PlayerIndex(action.PlayerID); !ok {
		s.mu.Unlock()
		return game.Outcome{}, ErrUnknownPlayer
	}

	decision := s.validator.Validate(action, s.state)
	if !decision.OK {
		s.rejected++
		tick := s.state.Tick
		s.mu.Unlock()
		s.appendEvent(tick, audit.EventActionRejected, map[string]string{
			"player_id": action.PlayerID,
			"kind":      string(action.Kind),
			"reason":    string(decision.Reason),
		})
		return game.Outcome{Accepted: false, Reason: string(decision.Reason)}, nil
	}

	verdict := s.detector.Check(action, s.state)
	if verdict.Flagged {
		s.flagged++
		tick := s.state.Tick
		s.mu.Unlock()
		s.appendEvent(tick, audit.EventActionFlagged, map[string]string{
			"player_id": action.PlayerID,
			"kind":      string(action.Kind),
			"reason":    string(verdict.Reason),
		})
		if verdict.Forfeit {
			//1.- Escalation: the offender forfeits in favour of the opponent.
			s.forfeitAgainst(action.PlayerID, "cheat flag limit exceeded")
		}
		return game.Outcome{Accepted: false, Reason: string(verdict.Reason)}, nil
	}

	select {
	case s.inbox <- action:
	default:
		//2.- The inbox bound is backpressure, not memory: the action is dropped
		// without an acknowledgment, and never blocks a tick.
		s.rejected++
		s.mu.Unlock()
		return game.Outcome{}, ErrInboxFull
	}
	s.accepted++
	tick := s.state.Tick
	hash := s.state.ContentHash()
	s.mu.Unlock()

	s.appendEvent(tick, audit.EventActionAccepted, map[string]string{
		"player_id": action.PlayerID,
		"kind":      string(action.Kind),
	})
	return game.Outcome{Accepted: true, StateHash: hash}, nil
}

// Step advances the match by one fixed timestep. It is invoked by the loop and
// directly by tests that need deterministic control over time.
func (s *Session) Step(dt time.Duration) {
	if s == nil {
		return
	}
	started := time.Now()

	s.mu.Lock()
	if s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}

	//1.- Drain the queued actions captured since the previous tick.
drain:
	for {
		select {
		case action := <-s.inbox:
			s.applyLocked(action)
		default:
			break drain
		}
	}

	//2.- Disconnect grace: a player absent past the window forfeits the match.
	if s.expireAbsencesLocked() {
		s.mu.Unlock()
		return
	}

	prevTick := s.state.Tick
	s.state.Tick++
	seconds := dt.Seconds()

	//3.- Physics integration for the ball and both players.
	s.physics.Step(s.state, seconds)

	//4.- Goal detection against the end-line margins, then kickoff reset.
	s.detectGoalLocked()

	//5.- Advance the match clock. An expired clock still ships this tick: the
	// final snapshot must reach subscribers and the audit stream before the
	// result closes the match, so a goal on the last tick is never silent.
	s.state.TimeRemaining -= dt
	expired := s.state.TimeRemaining <= 0
	if expired {
		s.state.TimeRemaining = 0
	}

	//6.- A broken invariant means the state is untrustworthy: void, never guess.
	if err := s.state.CheckInvariants(prevTick, s.cfg.Field); err != nil {
		s.logger.Error("state invariant violated", logging.Error(err))
		res := s.finalizer.Void(s.state.MatchID, err.Error())
		s.finalizeLocked(res)
		s.mu.Unlock()
		return
	}

	s.sealTickLocked()
	snapshot := s.state.BuildSnapshot()
	s.mu.Unlock()

	//7.- Persist and broadcast outside the lock; both sinks are non-blocking.
	s.appendSnapshot(snapshot)
	if s.broadcaster != nil {
		s.broadcaster.Publish(snapshot.MatchID, snapshot)
	}

	//8.- Only after the final tick is visible may the clock expiry finalize.
	if expired {
		s.mu.Lock()
		res := s.finalizer.Finalize(s.state, s.hashChain)
		s.finalizeLocked(res)
		s.mu.Unlock()
	}
	s.monitor.Observe(time.Since(started))
}

// sealTickLocked folds the tick's content hash into the running chain.
func (s *Session) sealTickLocked() {
	s.hashChain = game.ChainHash(s.hashChain, s.state.ContentHash())
}

func (s *Session) applyLocked(action game.Action) {
	index, ok := s.state.PlayerIndex(action.PlayerID)
	if !ok {
		return
	}
	player := &s.state.Players[index]
	target := game.Vector2{X: action.TargetX, Y: action.TargetY}

	switch action.Kind {
	case game.ActionMove:
		//1.- Clients steer by destination; the server derives the velocity so
		// movement speed can never exceed the avatar's limit.
		delta := target.Sub(player.Position)
		length := vectorLength(delta)
		if length < 1e-6 {
			player.Velocity = game.Vector2{}
			player.Animation = game.AnimationIdle
			return
		}
		player.Velocity = delta.Scale(player.Speed / length)
		player.Direction = action.Direction
		player.Animation = game.AnimationRunning

	case game.ActionKick, game.ActionShoot:
		//2.- Kicks push the ball away from the kicker along the contact line.
		impulse := s.cfg.Field.MaxKickForce * action.Power
		line := s.state.Ball.Position.Sub(player.Position)
		length := vectorLength(line)
		if length < 1e-6 {
			line = game.Vector2{X: 1}
			length = 1
		}
		s.state.Ball.Velocity = line.Scale(impulse / (length * s.state.Ball.Mass))
		s.state.LastKickerID = player.ID
		s.state.LastKickTick = s.state.Tick
		player.Animation = game.AnimationKicking

	case game.ActionPass:
		//3.- Passes are aimed: the ball travels toward the requested target.
		impulse := s.cfg.Field.MaxPassForce * action.Power
		line := target.Sub(s.state.Ball.Position)
		length := vectorLength(line)
		if length < 1e-6 {
			return
		}
		s.state.Ball.Velocity = line.Scale(impulse / (length * s.state.Ball.Mass))
		s.state.LastKickerID = player.ID
		s.state.LastKickTick = s.state.Tick
		player.Animation = game.AnimationKicking

	case game.ActionIdle:
		player.Velocity = game.Vector2{}
		player.Animation = game.AnimationIdle
	}
}

func (s *Session) detectGoalLocked() {
	ball := s.state.Ball.Position
	field := s.cfg.Field
	scorer := -1
	if ball.X < field.GoalMargin {
		scorer = game.AwaySide
	} else if ball.X > field.Width-field.GoalMargin {
		scorer = game.HomeSide
	}
	if scorer < 0 {
		return
	}
	s.state.Score[scorer]++
	s.state.ResetBall(field)
	s.state.LastKickerID = ""
	s.logger.Info("goal scored",
		logging.String("player_id", s.state.Players[scorer].ID),
		logging.Uint64("tick", s.state.Tick),
		logging.Int("home_score", s.state.Score[game.HomeSide]),
		logging.Int("away_score", s.state.Score[game.AwaySide]),
	)
	s.appendEvent(s.state.Tick, audit.EventGoal, map[string]any{
		"player_id": s.state.Players[scorer].ID,
		"score":     s.state.Score,
	})
}

// PlayerDisconnected records the wall time the player dropped. The match keeps
// simulating; the grace window decides whether they forfeit.
func (s *Session) PlayerDisconnected(playerID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if _, ok := s.state.PlayerIndex(playerID); ok && s.phase == PhaseRunning {
		s.absent[playerID] = s.now()
		s.logger.Info("player disconnected", logging.String("player_id", playerID))
	}
	s.mu.Unlock()
}

// PlayerReconnected clears the pending forfeit for the returning player.
func (s *Session) PlayerReconnected(playerID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if _, ok := s.absent[playerID]; ok {
		delete(s.absent, playerID)
		s.logger.Info("player reconnected", logging.String("player_id", playerID))
	}
	s.mu.Unlock()
}

// expireAbsencesLocked forfeits players absent past the grace period. Returns
// true when the match was finalized, with the session mutex still held by the
// caller.
func (s *Session) expireAbsencesLocked() bool {
	if len(s.absent) == 0 {
		return false
	}
	now := s.now()
	expired := make([]string, 0, len(s.absent))
	for playerID, since := range s.absent {
		if now.Sub(since) > s.cfg.GracePeriod {
			expired = append(expired, playerID)
		}
	}
	switch len(expired) {
	case 0:
		return false
	case 1:
		index, _ := s.state.PlayerIndex(expired[0])
		winner := s.state.Players[1-index].ID
		s.sealTickLocked()
		res := s.finalizer.Forfeit(s.state, winner, "opponent disconnected past grace period", s.hashChain)
		s.finalizeLocked(res)
	default:
		//1.- Both players gone: nobody earns a standing-score win.
		res := s.finalizer.Void(s.state.MatchID, "both players abandoned the match")
		s.finalizeLocked(res)
	}
	return true
}

// forfeitAgainst ends the match with the named player losing.
func (s *Session) forfeitAgainst(playerID, reason string) {
	s.mu.Lock()
	if s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	index, ok := s.state.PlayerIndex(playerID)
	if !ok {
		s.mu.Unlock()
		return
	}
	winner := s.state.Players[1-index].ID
	s.sealTickLocked()
	res := s.finalizer.Forfeit(s.state, winner, reason, s.hashChain)
	s.finalizeLocked(res)
	s.mu.Unlock()
}

// Abort ends the match immediately with a void result. Used by the operator
// surface; player-facing flows go through forfeit or completion.
func (s *Session) Abort(reason string) error {
	if s == nil {
		return errors.New("nil session")
	}
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	res := s.finalizer.Void(s.state.MatchID, reason)
	s.finalizeLocked(res)
	s.mu.Unlock()
	return nil
}

// finalizeLocked records the terminal result exactly once and tears the
// session down. Callers hold mu.
func (s *Session) finalizeLocked(res result.MatchResult) {
	if s.phase == PhaseEnded {
		return
	}
	s.phase = PhaseEnded
	s.state.Active = false
	s.final = res
	s.hasFinal = true
	if s.cancel != nil {
		s.cancel()
	}

	s.logger.Info("match finalized",
		logging.String("status", string(res.Status)),
		logging.String("winner_id", res.WinnerID),
		logging.Float64("duration_s", res.DurationSeconds),
		logging.String("hash_chain", res.StateHashChain),
	)
	if s.audit != nil {
		if err := s.audit.AppendEvent(s.state.Tick, audit.EventResult, res); err != nil {
			s.logger.Warn("audit result write failed", logging.Error(err))
		}
		if err := s.audit.Close(); err != nil {
			s.logger.Warn("audit bundle close failed", logging.Error(err))
		}
	}
	if s.settle != nil {
		if _, err := s.settle.Publish(res); err != nil {
			s.logger.Error("settlement publish failed", logging.Error(err))
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.CloseMatch(s.state.MatchID)
	}
	close(s.doneCh)
}

// Done is closed once the session produced its result.
func (s *Session) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.doneCh
}

// Result returns the terminal result once finalization happened.
func (s *Session) Result() (result.MatchResult, bool) {
	if s == nil {
		return result.MatchResult{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.hasFinal
}

// Snapshot captures the current broadcastable view of the match.
func (s *Session) Snapshot() game.Snapshot {
	if s == nil {
		return game.Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.BuildSnapshot()
}

// HashChain exposes the running hash chain, primarily for diagnostics.
func (s *Session) HashChain() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashChain
}

// Stats summarises the session for the diagnostics surface.
func (s *Session) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	s.mu.Lock()
	stats := Stats{
		MatchID:  s.state.MatchID,
		Phase:    s.phase.String(),
		Tick:     s.state.Tick,
		Score:    s.state.Score,
		Accepted: s.accepted,
		Rejected: s.rejected,
		Flagged:  s.flagged,
	}
	s.mu.Unlock()
	stats.Ticks = s.monitor.Snapshot()
	return stats
}

// FlagMetrics exposes the cheat counters for the diagnostics surface.
func (s *Session) FlagMetrics() map[string]cheat.FlagCounters {
	if s == nil {
		return nil
	}
	return s.detector.Metrics()
}

func (s *Session) appendEvent(tick uint64, eventType audit.EventType, payload any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendEvent(tick, eventType, payload); err != nil {
		s.logger.Warn("audit event write failed", logging.Error(err))
	}
}

func (s *Session) appendSnapshot(snapshot game.Snapshot) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn("snapshot encode failed", logging.Error(err))
		return
	}
	if err := s.audit.AppendSnapshot(snapshot.Tick, payload); err != nil {
		s.logger.Warn("audit snapshot write failed", logging.Error(err))
	}
}

func vectorLength(v game.Vector2) float64 {
	return math.Hypot(v.X, v.Y)
}
