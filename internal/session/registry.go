package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"goalrush/matchcore/internal/audit"
	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/settle"
)

var (
	// ErrMatchExists rejects a second session for the same match identifier.
	ErrMatchExists = errors.New("match already registered")
	// ErrMatchNotFound is returned for lookups of unknown matches.
	ErrMatchNotFound = errors.New("match not found")
	// ErrCapacity is returned once the concurrent session limit is reached.
	ErrCapacity = errors.New("session capacity reached")
)

// Registry owns the set of live match sessions and their shared sinks. Ended
// sessions are reaped automatically once they deliver a result.
type Registry struct {
	mu       sync.Mutex
	cfg      *config.Config
	logger   *logging.Logger
	sessions map[string]*Session

	broadcaster *broadcast.Broadcaster
	settlement  *settle.Stream

	started uint64
	ended   uint64
}

// NewRegistry wires a registry around the shared broadcaster and settlement stream.
func NewRegistry(cfg *config.Config, broadcaster *broadcast.Broadcaster, settlement *settle.Stream, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.L()
	}
	return &Registry{
		cfg:         cfg,
		logger:      logger,
		sessions:    make(map[string]*Session),
		broadcaster: broadcaster,
		settlement:  settlement,
	}
}

// Create registers and starts a session for the pairing. The audit bundle is
// optional: a missing audit directory downgrades to in-memory only operation.
func (r *Registry) Create(ctx context.Context, matchID, homeID, awayID string) (*Session, error) {
	if r == nil || r.cfg == nil {
		return nil, errors.New("registry not initialised")
	}

	r.mu.Lock()
	if _, exists := r.sessions[matchID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMatchExists, matchID)
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrCapacity
	}
	r.mu.Unlock()

	opts := []Option{WithSettleStream(r.settlement)}
	if r.cfg.AuditDir != "" {
		writer, _, err := audit.NewWriter(r.cfg.AuditDir, matchID, nil)
		if err != nil {
			r.logger.Warn("audit bundle unavailable",
				logging.String("match_id", matchID),
				logging.Error(err),
			)
		} else {
			opts = append(opts, WithAuditWriter(writer))
		}
	}

	sess, err := NewSession(r.cfg, matchID, homeID, awayID, r.broadcaster, r.logger, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.sessions[matchID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMatchExists, matchID)
	}
	//1.- The capacity gate re-runs under this lock: a concurrent Create may
	// have filled the registry while the session was being built.
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrCapacity
	}
	r.sessions[matchID] = sess
	r.started++
	r.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		r.remove(matchID)
		return nil, err
	}

	//2.- Reap the session once it produced its result so lookups stay clean.
	go func() {
		<-sess.Done()
		r.remove(matchID)
		r.mu.Lock()
		r.ended++
		r.mu.Unlock()
	}()

	return sess, nil
}

// Get resolves a live session by match identifier.
func (r *Registry) Get(matchID string) (*Session, error) {
	if r == nil {
		return nil, ErrMatchNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return sess, nil
}

// Abort ends the named match with a void result.
func (r *Registry) Abort(matchID, reason string) error {
	sess, err := r.Get(matchID)
	if err != nil {
		return err
	}
	return sess.Abort(reason)
}

// Shutdown aborts every live session, used on process exit.
func (r *Registry) Shutdown(reason string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		live = append(live, sess)
	}
	r.mu.Unlock()
	for _, sess := range live {
		if err := sess.Abort(reason); err != nil && !errors.Is(err, ErrSessionEnded) {
			r.logger.Warn("session abort failed",
				logging.String("match_id", sess.MatchID()),
				logging.Error(err),
			)
		}
	}
}

// RegistryStats is the aggregate diagnostics view across sessions.
type RegistryStats struct {
	Live    int     `json:"live"`
	Started uint64  `json:"started"`
	Ended   uint64  `json:"ended"`
	Matches []Stats `json:"matches"`
}

// Stats snapshots every live session.
func (r *Registry) Stats() RegistryStats {
	if r == nil {
		return RegistryStats{}
	}
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		live = append(live, sess)
	}
	stats := RegistryStats{Live: len(live), Started: r.started, Ended: r.ended}
	r.mu.Unlock()

	for _, sess := range live {
		stats.Matches = append(stats.Matches, sess.Stats())
	}
	return stats
}

func (r *Registry) remove(matchID string) {
	r.mu.Lock()
	delete(r.sessions, matchID)
	r.mu.Unlock()
}
