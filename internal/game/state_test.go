package game

import (
	"errors"
	"testing"
	"time"

	"goalrush/matchcore/internal/config"
)

func testField() config.FieldConfig {
	return config.FieldConfig{Width: 800, Height: 600, GoalMargin: 20}
}

func TestNewStatePlacesKickoffPositions(t *testing.T) {
	state := NewState("m", "home", "away", testField(), 3*time.Minute)

	if state.Ball.Position != (Vector2{X: 400, Y: 300}) {
		t.Fatalf("ball not at center: %+v", state.Ball.Position)
	}
	if state.Players[HomeSide].Position.X != 200 || state.Players[AwaySide].Position.X != 600 {
		t.Fatalf("players not at kickoff marks: %+v / %+v",
			state.Players[HomeSide].Position, state.Players[AwaySide].Position)
	}
	if !state.Active || state.Tick != 0 {
		t.Fatalf("fresh state must be active at tick zero: %+v", state)
	}
}

func TestPlayerIndexResolvesBothSides(t *testing.T) {
	state := NewState("m", "home", "away", testField(), 0)

	if idx, ok := state.PlayerIndex("home"); !ok || idx != HomeSide {
		t.Fatalf("home lookup failed: %d %v", idx, ok)
	}
	if idx, ok := state.PlayerIndex("away"); !ok || idx != AwaySide {
		t.Fatalf("away lookup failed: %d %v", idx, ok)
	}
	if _, ok := state.PlayerIndex("intruder"); ok {
		t.Fatalf("unknown player must not resolve")
	}
}

func TestResetBallRecentersWithZeroVelocity(t *testing.T) {
	state := NewState("m", "home", "away", testField(), 0)
	state.Ball.Position = Vector2{X: 10, Y: 10}
	state.Ball.Velocity = Vector2{X: -300, Y: 50}

	state.ResetBall(testField())

	if state.Ball.Position != (Vector2{X: 400, Y: 300}) || state.Ball.Velocity != (Vector2{}) {
		t.Fatalf("ball not reset: %+v", state.Ball)
	}
}

func TestCheckInvariantsDetectsTickSkips(t *testing.T) {
	state := NewState("m", "home", "away", testField(), 0)
	state.Tick = 5

	if err := state.CheckInvariants(4, testField()); err != nil {
		t.Fatalf("expected clean invariants: %v", err)
	}
	if err := state.CheckInvariants(3, testField()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant violation for skipped tick, got %v", err)
	}
}

func TestCheckInvariantsDetectsEscapedBall(t *testing.T) {
	state := NewState("m", "home", "away", testField(), 0)
	state.Tick = 1
	state.Ball.Position = Vector2{X: 801, Y: 300}

	if err := state.CheckInvariants(0, testField()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant violation for escaped ball, got %v", err)
	}
}
