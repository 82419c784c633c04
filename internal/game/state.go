package game

import (
	"errors"
	"fmt"
	"time"

	"goalrush/matchcore/internal/config"
)

// HomeSide and AwaySide index the two players inside a match state.
const (
	HomeSide = 0
	AwaySide = 1
)

// ErrInvariant signals that the authoritative state violated one of its own guarantees.
// This is never reachable through untrusted input alone; it indicates a server bug and
// voids the match.
var ErrInvariant = errors.New("game state invariant violated")

// Vector2 is a field-relative position or velocity in world units.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum of two vectors.
func (v Vector2) Add(o Vector2) Vector2 { return Vector2{X: v.X + o.X, Y: v.Y + o.Y} }

// Scale returns the vector multiplied by the scalar.
func (v Vector2) Scale(s float64) Vector2 { return Vector2{X: v.X * s, Y: v.Y * s} }

// Sub returns the component-wise difference v - o.
func (v Vector2) Sub(o Vector2) Vector2 { return Vector2{X: v.X - o.X, Y: v.Y - o.Y} }

// Ball carries the match ball kinematics. Radius and mass stay constant for a
// match's lifetime.
type Ball struct {
	Position Vector2 `json:"position"`
	Velocity Vector2 `json:"velocity"`
	Radius   float64 `json:"radius"`
	Mass     float64 `json:"mass"`
}

// AnimationState enumerates the cosmetic pose broadcast for each player.
type AnimationState string

const (
	AnimationIdle    AnimationState = "idle"
	AnimationRunning AnimationState = "running"
	AnimationKicking AnimationState = "kicking"
)

// Player is the authoritative per-client avatar inside a match.
type Player struct {
	ID        string         `json:"id"`
	Position  Vector2        `json:"position"`
	Velocity  Vector2        `json:"velocity"`
	Width     float64        `json:"width"`
	Height    float64        `json:"height"`
	Speed     float64        `json:"speed"`
	Direction float64        `json:"direction"`
	Animation AnimationState `json:"animation"`
}

// State is the aggregate root owned exclusively by one match session. Client
// supplied ticks and timestamps are advisory; this struct is the only clock
// that matters.
type State struct {
	MatchID       string
	Tick          uint64
	Ball          Ball
	Players       [2]Player
	Score         [2]int
	TimeRemaining time.Duration
	Active        bool
	LastKickerID  string
	LastKickTick  uint64
}

// NewState seeds a match state with both players at their kickoff marks and the
// ball at the center of the field.
func NewState(matchID, homeID, awayID string, field config.FieldConfig, duration time.Duration) *State {
	center := Vector2{X: field.Width / 2, Y: field.Height / 2}
	state := &State{
		MatchID:       matchID,
		Ball:          Ball{Position: center, Radius: 10, Mass: 1},
		TimeRemaining: duration,
		Active:        true,
	}
	state.Players[HomeSide] = Player{
		ID:        homeID,
		Position:  Vector2{X: field.Width * 0.25, Y: field.Height / 2},
		Width:     20,
		Height:    40,
		Speed:     220,
		Animation: AnimationIdle,
	}
	state.Players[AwaySide] = Player{
		ID:        awayID,
		Position:  Vector2{X: field.Width * 0.75, Y: field.Height / 2},
		Width:     20,
		Height:    40,
		Speed:     220,
		Animation: AnimationIdle,
	}
	return state
}

// PlayerIndex resolves the side index for the given player identifier.
func (s *State) PlayerIndex(playerID string) (int, bool) {
	if s == nil || playerID == "" {
		return 0, false
	}
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return i, true
		}
	}
	return 0, false
}

// ResetBall places the ball back at the center of the field with zero velocity.
func (s *State) ResetBall(field config.FieldConfig) {
	if s == nil {
		return
	}
	s.Ball.Position = Vector2{X: field.Width / 2, Y: field.Height / 2}
	s.Ball.Velocity = Vector2{}
}

// CheckInvariants verifies the guarantees the rest of the system relies on. A
// non-nil error means the state can no longer be trusted to produce a result.
func (s *State) CheckInvariants(prevTick uint64, field config.FieldConfig) error {
	if s == nil {
		return fmt.Errorf("%w: state is nil", ErrInvariant)
	}
	if s.Tick != prevTick+1 {
		return fmt.Errorf("%w: tick moved from %d to %d", ErrInvariant, prevTick, s.Tick)
	}
	for i, score := range s.Score {
		if score < 0 {
			return fmt.Errorf("%w: score[%d] is negative (%d)", ErrInvariant, i, score)
		}
	}
	if s.Ball.Position.X < 0 || s.Ball.Position.X > field.Width ||
		s.Ball.Position.Y < 0 || s.Ball.Position.Y > field.Height {
		return fmt.Errorf("%w: ball escaped the field at (%.2f, %.2f)", ErrInvariant, s.Ball.Position.X, s.Ball.Position.Y)
	}
	return nil
}
