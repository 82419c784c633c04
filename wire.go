package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"goalrush/matchcore/internal/game"
	"goalrush/matchcore/internal/result"
)

// Message type discriminators shared with the clients.
const (
	messageTypeAction   = "action"
	messageTypeAck      = "ack"
	messageTypeSnapshot = "snapshot"
	messageTypeResult   = "result"
	messageTypeTimeSync = "time_sync"
	messageTypeError    = "error"
)

var (
	errActionEmptyPayload = errors.New("empty action payload")
	errActionUnknownKind  = errors.New("action kind not recognised")
)

// inboundEnvelope carries only the discriminator; the concrete payload is
// re-decoded from the raw frame once the type is known.
type inboundEnvelope struct {
	Type string `json:"type"`
}

// actionPayload mirrors the JSON layout of client action frames.
type actionPayload struct {
	Type      string  `json:"type"`
	MatchID   string  `json:"match_id"`
	Tick      uint64  `json:"tick"`
	Kind      string  `json:"kind"`
	TargetX   float64 `json:"target_x"`
	TargetY   float64 `json:"target_y"`
	Power     float64 `json:"power"`
	Direction float64 `json:"direction"`
	ClientMs  int64   `json:"client_ms,omitempty"`
}

// decodeActionPayload parses a websocket frame into a structured payload.
func decodeActionPayload(raw []byte) (*actionPayload, error) {
	if len(raw) == 0 {
		return nil, errActionEmptyPayload
	}
	var payload actionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// toAction converts the wire payload into the internal action for the named
// sender. The claimed client timestamp stays advisory.
func (payload *actionPayload) toAction(playerID string) (game.Action, error) {
	if payload == nil {
		return game.Action{}, errActionEmptyPayload
	}
	kind := game.ActionKind(strings.ToLower(strings.TrimSpace(payload.Kind)))
	if !game.KnownKind(kind) {
		return game.Action{}, fmt.Errorf("%w: %q", errActionUnknownKind, payload.Kind)
	}
	action := game.Action{
		MatchID:   payload.MatchID,
		PlayerID:  playerID,
		Tick:      payload.Tick,
		Kind:      kind,
		TargetX:   payload.TargetX,
		TargetY:   payload.TargetY,
		Power:     payload.Power,
		Direction: payload.Direction,
	}
	if payload.ClientMs != 0 {
		action.ClientTimestamp = time.UnixMilli(payload.ClientMs)
	}
	return action, nil
}

// ackFrame answers a single action submission.
type ackFrame struct {
	Type      string `json:"type"`
	Tick      uint64 `json:"tick"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
	StateHash string `json:"state_hash,omitempty"`
}

func encodeAck(tick uint64, outcome game.Outcome) []byte {
	frame := ackFrame{
		Type:      messageTypeAck,
		Tick:      tick,
		Accepted:  outcome.Accepted,
		Reason:    outcome.Reason,
		StateHash: outcome.StateHash,
	}
	raw, _ := json.Marshal(frame)
	return raw
}

// snapshotFrame wraps the authoritative state for broadcast.
type snapshotFrame struct {
	Type string `json:"type"`
	game.Snapshot
}

func encodeSnapshot(snapshot game.Snapshot) ([]byte, error) {
	return json.Marshal(snapshotFrame{Type: messageTypeSnapshot, Snapshot: snapshot})
}

// resultFrame is the terminal message a client receives for its match.
type resultFrame struct {
	Type   string             `json:"type"`
	Result result.MatchResult `json:"result"`
}

func encodeResult(res result.MatchResult) []byte {
	raw, _ := json.Marshal(resultFrame{Type: messageTypeResult, Result: res})
	return raw
}

// timeSyncPayload mirrors both directions of the clock probe: the client echo
// carries client_ms, the reply adds the server observations.
type timeSyncPayload struct {
	Type     string `json:"type"`
	ClientMs int64  `json:"client_ms"`
	ServerMs int64  `json:"server_ms,omitempty"`
	Tick     uint64 `json:"tick,omitempty"`
}

func encodeTimeSync(clientMs int64, serverMs int64, tick uint64) []byte {
	raw, _ := json.Marshal(timeSyncPayload{
		Type:     messageTypeTimeSync,
		ClientMs: clientMs,
		ServerMs: serverMs,
		Tick:     tick,
	})
	return raw
}

// errorFrame reports a non-fatal protocol problem to the sender.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeError(message string) []byte {
	raw, _ := json.Marshal(errorFrame{Type: messageTypeError, Message: message})
	return raw
}
