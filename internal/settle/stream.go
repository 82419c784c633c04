// Package settle delivers finalized match results to the external settlement
// collaborator. The core guarantees each result is produced exactly once; this
// stream layers ordered, acknowledged, at-least-once delivery on top so a
// transiently disconnected consumer never loses a result.
package settle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"goalrush/matchcore/internal/result"
)

// Envelope carries one match result together with sequencing metadata.
type Envelope struct {
	Sequence uint64             `json:"sequence"`
	Result   result.MatchResult `json:"result"`
}

// Config controls the retention policy for the stream log.
type Config struct {
	Retain int
}

const defaultRetention = 256

// ErrOutOfOrderAck signals that a consumer attempted to acknowledge out of order.
var ErrOutOfOrderAck = errors.New("ack sequence must match the next pending result")

// Stream coordinates ordered result delivery with at-least-once semantics per
// consumer. Acknowledgement state survives transient disconnects.
type Stream struct {
	mu        sync.Mutex
	nextSeq   uint64
	retention int
	order     []uint64
	payloads  map[uint64]Envelope
	consumers map[string]*consumerState
}

type consumerState struct {
	pending []uint64
	lastAck uint64
	ch      chan Envelope
	active  bool
}

// Subscription exposes the result channel and acknowledgement helpers.
type Subscription struct {
	id     string
	stream *Stream
	events chan Envelope
	once   sync.Once
}

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Stream{
		retention: retention,
		payloads:  make(map[uint64]Envelope),
		consumers: make(map[string]*consumerState),
	}
}

// Publish enqueues the result for every consumer and returns its sequence.
func (s *Stream) Publish(res result.MatchResult) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}

	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	envelope := Envelope{Sequence: seq, Result: res}
	s.payloads[seq] = envelope
	s.order = append(s.order, seq)

	deliveries := make([]chan Envelope, 0, len(s.consumers))
	for _, state := range s.consumers {
		state.pending = append(state.pending, seq)
		if state.active && state.ch != nil {
			deliveries = append(deliveries, state.ch)
		}
	}
	s.enforceRetentionLocked()
	s.mu.Unlock()

	for _, ch := range deliveries {
		//1.- Deliver without blocking; a slow consumer replays from the log on
		// its next subscribe instead of stalling finalization.
		select {
		case ch <- envelope:
		default:
		}
	}
	return seq, nil
}

// Subscribe attaches the logical consumer and replays unacknowledged results.
func (s *Stream) Subscribe(ctx context.Context, consumerID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, errors.New("nil stream")
	}
	if consumerID == "" {
		return nil, errors.New("consumer id must be provided")
	}
	if buffer <= 0 {
		buffer = 16
	}

	s.mu.Lock()
	state, ok := s.consumers[consumerID]
	if !ok {
		state = &consumerState{}
		s.consumers[consumerID] = state
	}
	//1.- Everything past lastAck is owed to a reconnecting consumer.
	replay := make([]uint64, 0, len(s.order))
	for _, seq := range s.order {
		if seq > state.lastAck {
			replay = append(replay, seq)
		}
	}
	ch := make(chan Envelope, buffer)
	state.ch = ch
	state.active = true
	state.pending = append([]uint64(nil), replay...)
	deliveries := make([]Envelope, 0, len(replay))
	for _, seq := range replay {
		if payload, ok := s.payloads[seq]; ok {
			deliveries = append(deliveries, payload)
		}
	}
	s.mu.Unlock()

	go func() {
		for _, env := range deliveries {
			select {
			case <-ctx.Done():
				return
			case ch <- env:
			}
		}
	}()

	return &Subscription{id: consumerID, stream: s, events: ch}, nil
}

// Results exposes the ordered delivery channel for the consumer.
func (s *Subscription) Results() <-chan Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// Ack informs the stream that the consumer durably processed the sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close marks the subscription inactive while preserving acknowledgement state.
// A stale Close, racing a resubscribe for the same consumer, must not detach
// the replacement, so only the subscription still owning the live channel may
// deactivate the consumer.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.deactivate(s.id, s.events)
	})
}

func (s *Stream) ack(consumerID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.consumers[consumerID]
	if !ok {
		return fmt.Errorf("unknown consumer %q", consumerID)
	}
	if len(state.pending) == 0 {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	if sequence != state.pending[0] {
		return ErrOutOfOrderAck
	}
	state.pending = state.pending[1:]
	state.lastAck = sequence
	s.enforceRetentionLocked()
	return nil
}

func (s *Stream) deactivate(consumerID string, ch chan Envelope) {
	s.mu.Lock()
	//1.- The channel is never closed here: Publish may hold a reference and
	// send outside the lock, and abandoned pumps unwind via their context.
	if state, ok := s.consumers[consumerID]; ok && state.ch == ch {
		state.active = false
		state.ch = nil
	}
	s.mu.Unlock()
}

func (s *Stream) enforceRetentionLocked() {
	if len(s.order) <= s.retention {
		return
	}
	//1.- Never prune past the lowest acknowledgement so replays stay possible.
	minAck := s.nextSeq
	for _, state := range s.consumers {
		if state.lastAck < minAck {
			minAck = state.lastAck
		}
	}
	cutoff := s.order[len(s.order)-s.retention]
	pruneBefore := minAck
	if cutoff < pruneBefore {
		pruneBefore = cutoff
	}
	if pruneBefore == 0 {
		return
	}
	idx := sort.Search(len(s.order), func(i int) bool { return s.order[i] > pruneBefore })
	for _, seq := range s.order[:idx] {
		delete(s.payloads, seq)
	}
	s.order = append([]uint64(nil), s.order[idx:]...)
}
