package rules

import (
	"fmt"

	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
)

// Reason identifies why an action was rejected by the validator.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTickWindow   Reason = "tick_window"
	ReasonTargetBounds Reason = "target_bounds"
	ReasonPowerRange   Reason = "power_range"
	ReasonUnknownKind  Reason = "unknown_kind"
)

// TickWindow bounds how far a client-claimed tick may diverge from the server
// tick before the action is treated as replayed or forged.
const TickWindow = 10

// Decision carries the accept/reject outcome with a human-readable detail.
type Decision struct {
	OK     bool
	Reason Reason
	Detail string
}

// Validator applies the stateless plausibility checks to inbound actions. It
// never mutates state; ordering of checks is part of the contract, first
// failure wins.
type Validator struct {
	field config.FieldConfig
}

// NewValidator constructs a validator for the given field geometry.
func NewValidator(field config.FieldConfig) *Validator {
	return &Validator{field: field}
}

// Validate checks the action against the current authoritative state.
func (v *Validator) Validate(action game.Action, state *game.State) Decision {
	if v == nil || state == nil {
		return Decision{OK: true}
	}

	//1.- Reject stale or future ticks outside the replay window. Client ticks
	// are advisory; the window bounds how much skew they may claim.
	if tickDistance(action.Tick, state.Tick) > TickWindow {
		return Decision{
			Reason: ReasonTickWindow,
			Detail: fmt.Sprintf("action tick %d outside ±%d of server tick %d", action.Tick, TickWindow, state.Tick),
		}
	}

	//2.- Targets must land inside the playing field.
	if action.TargetX < 0 || action.TargetX > v.field.Width ||
		action.TargetY < 0 || action.TargetY > v.field.Height {
		return Decision{
			Reason: ReasonTargetBounds,
			Detail: fmt.Sprintf("target (%.1f, %.1f) outside field %gx%g", action.TargetX, action.TargetY, v.field.Width, v.field.Height),
		}
	}

	//3.- Power is normalized; anything outside [0,1] is forged.
	if action.Power < 0 || action.Power > 1 {
		return Decision{
			Reason: ReasonPowerRange,
			Detail: fmt.Sprintf("power %.3f outside [0,1]", action.Power),
		}
	}

	//4.- Only the five known action variants are accepted.
	if !game.KnownKind(action.Kind) {
		return Decision{
			Reason: ReasonUnknownKind,
			Detail: fmt.Sprintf("unknown action kind %q", action.Kind),
		}
	}

	return Decision{OK: true}
}

func tickDistance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
