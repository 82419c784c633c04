package physics

import (
	"math"
	"testing"

	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
)

func testField() config.FieldConfig {
	return config.FieldConfig{
		Width:        config.DefaultFieldWidth,
		Height:       config.DefaultFieldHeight,
		GoalMargin:   config.DefaultGoalMargin,
		MaxKickForce: config.DefaultMaxKickForce,
		MaxPassForce: config.DefaultMaxPassForce,
	}
}

func TestStepIsDeterministic(t *testing.T) {
	//1.- Run the same initial state through two independent simulators.
	sim := NewSimulator(testField())
	a := game.NewState("m", "home", "away", testField(), 0)
	b := game.NewState("m", "home", "away", testField(), 0)
	a.Ball.Velocity = game.Vector2{X: 137.5, Y: -82.25}
	b.Ball.Velocity = game.Vector2{X: 137.5, Y: -82.25}
	a.Players[0].Velocity = game.Vector2{X: 50, Y: 10}
	b.Players[0].Velocity = game.Vector2{X: 50, Y: 10}

	for i := 0; i < 600; i++ {
		sim.Step(a, FixedStep)
		sim.Step(b, FixedStep)
	}

	//2.- Bitwise identical trajectories are the whole point of a fixed timestep.
	if a.Ball.Position != b.Ball.Position || a.Ball.Velocity != b.Ball.Velocity {
		t.Fatalf("ball diverged: %+v vs %+v", a.Ball, b.Ball)
	}
	if a.Players[0].Position != b.Players[0].Position {
		t.Fatalf("player diverged: %+v vs %+v", a.Players[0].Position, b.Players[0].Position)
	}
}

func TestBallFrictionDecaysVelocity(t *testing.T) {
	sim := NewSimulator(testField())
	state := game.NewState("m", "home", "away", testField(), 0)
	state.Ball.Velocity = game.Vector2{X: 100, Y: 0}

	sim.Step(state, FixedStep)

	//1.- One tick applies exactly one friction multiplier.
	if got := state.Ball.Velocity.X; math.Abs(got-100*BallFriction) > 1e-9 {
		t.Fatalf("expected velocity %.6f, got %.6f", 100*BallFriction, got)
	}
}

func TestBallBouncesOffWalls(t *testing.T) {
	sim := NewSimulator(testField())
	state := game.NewState("m", "home", "away", testField(), 0)
	state.Ball.Position = game.Vector2{X: 1, Y: 300}
	state.Ball.Velocity = game.Vector2{X: -600, Y: 0}

	sim.Step(state, FixedStep)

	//1.- The ball must stay inside the field and reverse direction.
	if state.Ball.Position.X < 0 {
		t.Fatalf("ball escaped the field: %+v", state.Ball.Position)
	}
	if state.Ball.Velocity.X <= 0 {
		t.Fatalf("expected reversed velocity, got %.2f", state.Ball.Velocity.X)
	}
	//2.- The restitution factor dampens the rebound.
	want := 600 * BallFriction * WallRestitution
	if math.Abs(state.Ball.Velocity.X-want) > 1.0 {
		t.Fatalf("expected rebound speed near %.2f, got %.2f", want, state.Ball.Velocity.X)
	}
}

func TestPlayersClampAtWallsWithoutBouncing(t *testing.T) {
	sim := NewSimulator(testField())
	state := game.NewState("m", "home", "away", testField(), 0)
	state.Players[0].Position = game.Vector2{X: 2, Y: 300}
	state.Players[0].Velocity = game.Vector2{X: -500, Y: 0}

	sim.Step(state, FixedStep)

	//1.- Players stop at the boundary instead of reflecting.
	if state.Players[0].Position.X < 0 {
		t.Fatalf("player escaped the field: %+v", state.Players[0].Position)
	}
	if state.Players[0].Velocity.X != 0 {
		t.Fatalf("expected clamped velocity, got %.2f", state.Players[0].Velocity.X)
	}
}
