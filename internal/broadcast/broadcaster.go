package broadcast

import (
	"errors"
	"sync"

	"goalrush/matchcore/internal/game"
)

// ErrAlreadySubscribed signals a duplicate subscription for the same client.
var ErrAlreadySubscribed = errors.New("client already subscribed to match")

// Counters aggregates delivery statistics for diagnostics.
type Counters struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Subscription is one client's buffered view of a match's snapshot stream. The
// channel is drained by the connection's dedicated write loop.
type Subscription struct {
	matchID  string
	clientID string
	ch       chan game.Snapshot
}

// Snapshots exposes the ordered snapshot channel.
func (s *Subscription) Snapshots() <-chan game.Snapshot {
	if s == nil {
		return nil
	}
	return s.ch
}

// Broadcaster fans full state snapshots out to the subscribers of each match.
// Publishing never blocks: when a subscriber's buffer is full the oldest unsent
// snapshot is discarded in favour of the newest, which is safe because
// snapshots are self-contained.
type Broadcaster struct {
	mu      sync.Mutex
	buffer  int
	matches map[string]map[string]*Subscription
	stats   Counters
}

// NewBroadcaster constructs a broadcaster with the given per-client buffer size.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	return &Broadcaster{
		buffer:  buffer,
		matches: make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a client for the match's snapshot stream.
func (b *Broadcaster) Subscribe(matchID, clientID string) (*Subscription, error) {
	if b == nil || matchID == "" || clientID == "" {
		return nil, errors.New("match and client identifiers are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.matches[matchID]
	if subs == nil {
		subs = make(map[string]*Subscription, 2)
		b.matches[matchID] = subs
	}
	if _, exists := subs[clientID]; exists {
		return nil, ErrAlreadySubscribed
	}
	sub := &Subscription{
		matchID:  matchID,
		clientID: clientID,
		ch:       make(chan game.Snapshot, b.buffer),
	}
	subs[clientID] = sub
	return sub, nil
}

// Unsubscribe detaches the client and closes its snapshot channel.
func (b *Broadcaster) Unsubscribe(matchID, clientID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.matches[matchID]
	sub, ok := subs[clientID]
	if !ok {
		return
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(b.matches, matchID)
	}
	close(sub.ch)
}

// CloseMatch detaches every subscriber of the match, closing their channels.
func (b *Broadcaster) CloseMatch(matchID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.matches[matchID] {
		close(sub.ch)
	}
	delete(b.matches, matchID)
}

// Publish fans the snapshot out to the match's subscribers without blocking the
// caller, which runs inside the session tick loop.
func (b *Broadcaster) Publish(matchID string, snapshot game.Snapshot) {
	if b == nil || matchID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Published++
	for _, sub := range b.matches[matchID] {
		//1.- Fast path: buffer has room, deliver immediately.
		select {
		case sub.ch <- snapshot:
			b.stats.Delivered++
			continue
		default:
		}
		//2.- Buffer full: evict the oldest snapshot, then retry once. A racing
		// reader may have drained in between, so the second send can still
		// refuse; the slow client simply keeps its newest buffered state.
		select {
		case <-sub.ch:
			b.stats.Dropped++
		default:
		}
		select {
		case sub.ch <- snapshot:
			b.stats.Delivered++
		default:
			b.stats.Dropped++
		}
	}
}

// Stats returns a copy of the delivery counters.
func (b *Broadcaster) Stats() Counters {
	if b == nil {
		return Counters{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// SubscriberCount reports how many clients are attached to the match.
func (b *Broadcaster) SubscriberCount(matchID string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.matches[matchID])
}
