package rules

import (
	"testing"

	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
)

func testField() config.FieldConfig {
	return config.FieldConfig{Width: 800, Height: 600, GoalMargin: 20, MaxKickForce: 600, MaxPassForce: 350}
}

func testState(tick uint64) *game.State {
	state := game.NewState("m", "home", "away", testField(), 0)
	state.Tick = tick
	return state
}

func baseAction(tick uint64) game.Action {
	return game.Action{
		MatchID:  "m",
		PlayerID: "home",
		Tick:     tick,
		Kind:     game.ActionMove,
		TargetX:  400,
		TargetY:  300,
		Power:    0.5,
	}
}

func TestValidateAcceptsWellFormedAction(t *testing.T) {
	validator := NewValidator(testField())
	decision := validator.Validate(baseAction(100), testState(100))
	if !decision.OK {
		t.Fatalf("expected acceptance, got %q (%s)", decision.Reason, decision.Detail)
	}
}

func TestValidateRejectsTickOutsideWindow(t *testing.T) {
	validator := NewValidator(testField())
	state := testState(100)

	//1.- Exactly at the window boundary the action is still valid.
	edge := baseAction(100 + TickWindow)
	if decision := validator.Validate(edge, state); !decision.OK {
		t.Fatalf("expected boundary tick to pass, got %q", decision.Reason)
	}

	//2.- One past the window in either direction is rejected.
	for _, tick := range []uint64{100 + TickWindow + 1, 100 - TickWindow - 1} {
		action := baseAction(tick)
		decision := validator.Validate(action, state)
		if decision.OK || decision.Reason != ReasonTickWindow {
			t.Fatalf("tick %d: expected %q rejection, got %+v", tick, ReasonTickWindow, decision)
		}
	}
}

func TestValidateRejectsOutOfBoundsTarget(t *testing.T) {
	validator := NewValidator(testField())
	state := testState(10)

	action := baseAction(10)
	action.TargetX = -5
	decision := validator.Validate(action, state)
	if decision.OK || decision.Reason != ReasonTargetBounds {
		t.Fatalf("expected %q rejection, got %+v", ReasonTargetBounds, decision)
	}

	action = baseAction(10)
	action.TargetY = 600.1
	if decision := validator.Validate(action, state); decision.Reason != ReasonTargetBounds {
		t.Fatalf("expected %q rejection, got %+v", ReasonTargetBounds, decision)
	}
}

func TestValidateRejectsPowerOutsideRange(t *testing.T) {
	validator := NewValidator(testField())
	state := testState(10)

	for _, power := range []float64{-0.01, 1.5} {
		action := baseAction(10)
		action.Power = power
		decision := validator.Validate(action, state)
		if decision.OK || decision.Reason != ReasonPowerRange {
			t.Fatalf("power %.2f: expected %q rejection, got %+v", power, ReasonPowerRange, decision)
		}
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	validator := NewValidator(testField())
	action := baseAction(10)
	action.Kind = game.ActionKind("teleport")
	decision := validator.Validate(action, testState(10))
	if decision.OK || decision.Reason != ReasonUnknownKind {
		t.Fatalf("expected %q rejection, got %+v", ReasonUnknownKind, decision)
	}
}

func TestValidateOrderingFirstFailureWins(t *testing.T) {
	//1.- An action failing several checks reports the tick window first.
	validator := NewValidator(testField())
	action := baseAction(500)
	action.Power = 3
	action.TargetX = -1
	decision := validator.Validate(action, testState(10))
	if decision.Reason != ReasonTickWindow {
		t.Fatalf("expected the tick check to fire first, got %q", decision.Reason)
	}
}
