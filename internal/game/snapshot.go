package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// PlayerSnapshot is the per-player slice of an outbound state snapshot.
type PlayerSnapshot struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
	Anim string  `json:"anim"`
}

// BallSnapshot is the ball slice of an outbound state snapshot.
type BallSnapshot struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// Snapshot is the full, non-incremental view of a match state pushed to both
// clients every tick. Snapshots carry no causal dependency on one another, so
// dropping stale ones in favour of newer ones is always safe.
type Snapshot struct {
	MatchID       string            `json:"match_id"`
	Tick          uint64            `json:"tick"`
	Ball          BallSnapshot      `json:"ball"`
	Players       [2]PlayerSnapshot `json:"players"`
	Score         [2]int            `json:"score"`
	TimeRemaining float64           `json:"time_remaining_s"`
	StateHash     string            `json:"state_hash"`
}

// BuildSnapshot captures the broadcastable view of the state, including the
// short content hash used for integrity auditing.
func (s *State) BuildSnapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snapshot := Snapshot{
		MatchID: s.MatchID,
		Tick:    s.Tick,
		Ball: BallSnapshot{
			X:  s.Ball.Position.X,
			Y:  s.Ball.Position.Y,
			VX: s.Ball.Velocity.X,
			VY: s.Ball.Velocity.Y,
		},
		Score:         s.Score,
		TimeRemaining: s.TimeRemaining.Seconds(),
	}
	for i := range s.Players {
		snapshot.Players[i] = PlayerSnapshot{
			ID:   s.Players[i].ID,
			X:    s.Players[i].Position.X,
			Y:    s.Players[i].Position.Y,
			VX:   s.Players[i].Velocity.X,
			VY:   s.Players[i].Velocity.Y,
			Anim: string(s.Players[i].Animation),
		}
	}
	snapshot.StateHash = s.ContentHash()
	return snapshot
}

// ContentHash digests tick, ball kinematics, score, and rounded player positions
// into a short hex string. The hash is for auditing; gameplay never branches on it.
func (s *State) ContentHash() string {
	if s == nil {
		return ""
	}
	digest := sha256.New()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		digest.Write(buf[:])
	}
	writeFloat := func(v float64) {
		writeUint(math.Float64bits(v))
	}
	writeUint(s.Tick)
	writeFloat(s.Ball.Position.X)
	writeFloat(s.Ball.Position.Y)
	writeFloat(s.Ball.Velocity.X)
	writeFloat(s.Ball.Velocity.Y)
	writeUint(uint64(s.Score[HomeSide]))
	writeUint(uint64(s.Score[AwaySide]))
	for i := range s.Players {
		// Positions are rounded so cosmetic float jitter from serialization
		// round-trips does not change the audit trail.
		writeFloat(math.Round(s.Players[i].Position.X))
		writeFloat(math.Round(s.Players[i].Position.Y))
	}
	sum := digest.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// ChainHash folds the tick hash into the running hash chain, producing the next
// chain value. The terminal chain value lands in the match result for
// downstream verification.
func ChainHash(prev, tickHash string) string {
	digest := sha256.New()
	digest.Write([]byte(prev))
	digest.Write([]byte(tickHash))
	sum := digest.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
