package result

import (
	"errors"
	"testing"
	"time"

	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/game"
)

func testField() config.FieldConfig {
	return config.FieldConfig{Width: 800, Height: 600, GoalMargin: 20}
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func terminalState(home, away int, remaining time.Duration) *game.State {
	state := game.NewState("match-1", "alice", "bob", testField(), 3*time.Minute)
	state.Score = [2]int{home, away}
	state.TimeRemaining = remaining
	return state
}

func TestFinalizeAwardsHigherScore(t *testing.T) {
	finalizer := NewFinalizer(TiePolicyDraw, 3*time.Minute, WithFinalizerClock(fixedNow))
	res := finalizer.Finalize(terminalState(2, 1, 0), "chain-abc")

	if res.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", res.Status)
	}
	if res.WinnerID != "alice" || res.LoserID != "bob" {
		t.Fatalf("unexpected winner/loser: %q / %q", res.WinnerID, res.LoserID)
	}
	if res.DurationSeconds != 180 {
		t.Fatalf("expected 180s duration, got %.1f", res.DurationSeconds)
	}
	if res.StateHashChain != "chain-abc" {
		t.Fatalf("hash chain not carried: %q", res.StateHashChain)
	}
	if !res.FinalizedAt.Equal(fixedNow()) {
		t.Fatalf("expected injected clock timestamp, got %v", res.FinalizedAt)
	}
}

func TestFinalizeTieUnderDrawPolicy(t *testing.T) {
	finalizer := NewFinalizer(TiePolicyDraw, 3*time.Minute, WithFinalizerClock(fixedNow))
	res := finalizer.Finalize(terminalState(1, 1, 0), "chain")

	if res.Status != StatusDraw {
		t.Fatalf("expected draw, got %q", res.Status)
	}
	if res.WinnerID != "" || res.LoserID != "" {
		t.Fatalf("a draw names no winner: %+v", res)
	}
}

func TestFinalizeTieUnderVoidPolicy(t *testing.T) {
	finalizer := NewFinalizer(TiePolicyVoid, 3*time.Minute, WithFinalizerClock(fixedNow))
	res := finalizer.Finalize(terminalState(0, 0, 0), "chain")

	if res.Status != StatusVoid {
		t.Fatalf("expected void, got %q", res.Status)
	}
	if res.Reason == "" {
		t.Fatalf("void result must carry a reason")
	}
}

func TestForfeitKeepsStandingScore(t *testing.T) {
	finalizer := NewFinalizer(TiePolicyDraw, 3*time.Minute, WithFinalizerClock(fixedNow))
	res := finalizer.Forfeit(terminalState(0, 3, time.Minute), "bob", "opponent disconnected past grace period", "chain")

	if res.Status != StatusForfeit {
		t.Fatalf("expected forfeit, got %q", res.Status)
	}
	if res.WinnerID != "bob" || res.LoserID != "alice" {
		t.Fatalf("unexpected winner/loser: %q / %q", res.WinnerID, res.LoserID)
	}
	if res.FinalScore != [2]int{0, 3} {
		t.Fatalf("standing score not preserved: %v", res.FinalScore)
	}
	//1.- Two of three minutes had elapsed when the grace window expired.
	if res.DurationSeconds != 120 {
		t.Fatalf("expected 120s duration, got %.1f", res.DurationSeconds)
	}
}

func TestVoidCarriesNoScoreOrWinner(t *testing.T) {
	finalizer := NewFinalizer(TiePolicyDraw, 3*time.Minute, WithFinalizerClock(fixedNow))
	res := finalizer.Void("match-1", "game state invariant violated")

	if res.Status != StatusVoid {
		t.Fatalf("expected void, got %q", res.Status)
	}
	if res.WinnerID != "" || res.FinalScore != [2]int{} {
		t.Fatalf("void result must not fabricate outcomes: %+v", res)
	}
}

func TestParseTiePolicy(t *testing.T) {
	if policy, err := ParseTiePolicy("draw"); err != nil || policy != TiePolicyDraw {
		t.Fatalf("parse draw failed: %v %v", policy, err)
	}
	if policy, err := ParseTiePolicy("void"); err != nil || policy != TiePolicyVoid {
		t.Fatalf("parse void failed: %v %v", policy, err)
	}
	if _, err := ParseTiePolicy("sudden-death"); !errors.Is(err, ErrUnknownTiePolicy) {
		t.Fatalf("expected ErrUnknownTiePolicy, got %v", err)
	}
}
