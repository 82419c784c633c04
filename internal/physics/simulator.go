package physics

import (
	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
)

const (
	// BallFriction is the per-tick velocity decay applied to the ball.
	BallFriction = 0.99
	// WallRestitution scales the reflected velocity component on boundary hits.
	WallRestitution = 0.95
	// FixedStep is the simulation timestep in seconds. Determinism depends on the
	// simulator never consuming a wall-clock delta.
	FixedStep = 1.0 / 60.0
)

// Simulator advances ball and player kinematics with semi-implicit Euler
// integration. It performs no I/O and holds no state, so two runs over the same
// inputs produce bit-identical outputs.
type Simulator struct {
	field config.FieldConfig
}

// NewSimulator constructs a simulator for the given field geometry.
func NewSimulator(field config.FieldConfig) *Simulator {
	return &Simulator{field: field}
}

// Step advances the state in place by the fixed timestep dt.
func (p *Simulator) Step(state *game.State, dt float64) {
	//1.- Guard against nil state and degenerate timesteps for robustness.
	if p == nil || state == nil || dt <= 0 {
		return
	}
	p.stepBall(state, dt)
	for i := range state.Players {
		p.stepPlayer(&state.Players[i], dt)
	}
}

func (p *Simulator) stepBall(state *game.State, dt float64) {
	ball := &state.Ball
	//1.- Integrate position before decaying velocity so the applied impulse
	// moves the ball on the tick it lands.
	ball.Position = ball.Position.Add(ball.Velocity.Scale(dt))
	ball.Velocity = ball.Velocity.Scale(BallFriction)

	//2.- Bounce off the four field boundaries: clamp to the wall and reflect the
	// corresponding velocity component with restitution.
	if ball.Position.X < 0 {
		ball.Position.X = 0
		ball.Velocity.X = -ball.Velocity.X * WallRestitution
	} else if ball.Position.X > p.field.Width {
		ball.Position.X = p.field.Width
		ball.Velocity.X = -ball.Velocity.X * WallRestitution
	}
	if ball.Position.Y < 0 {
		ball.Position.Y = 0
		ball.Velocity.Y = -ball.Velocity.Y * WallRestitution
	} else if ball.Position.Y > p.field.Height {
		ball.Position.Y = p.field.Height
		ball.Velocity.Y = -ball.Velocity.Y * WallRestitution
	}
}

func (p *Simulator) stepPlayer(player *game.Player, dt float64) {
	//1.- Integrate the player's position from its commanded velocity.
	player.Position = player.Position.Add(player.Velocity.Scale(dt))

	//2.- Players are clamped to the field, not bounced; momentum dies at the wall.
	if player.Position.X < 0 {
		player.Position.X = 0
		player.Velocity.X = 0
	} else if player.Position.X > p.field.Width {
		player.Position.X = p.field.Width
		player.Velocity.X = 0
	}
	if player.Position.Y < 0 {
		player.Position.Y = 0
		player.Velocity.Y = 0
	} else if player.Position.Y > p.field.Height {
		player.Position.Y = p.field.Height
		player.Velocity.Y = 0
	}
}
