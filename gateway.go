package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/session"
)

var errNotParticipant = errors.New("player is not part of this match")

// lobbyEntry is a parked player waiting for an opponent.
type lobbyEntry struct {
	matchID  string
	playerID string
	client   *client
}

// Gateway owns the WebSocket endpoint: handshake auth, pairing players into
// match sessions, and the per-connection read/write pumps.
type Gateway struct {
	cfg           *config.Config
	logger        *logging.Logger
	registry      *session.Registry
	broadcaster   *broadcast.Broadcaster
	authenticator websocketAuthenticator
	upgrader      websocket.Upgrader

	ctx context.Context

	mu      sync.Mutex
	clients map[string]*client
	lobby   map[string]*lobbyEntry
	waiting *lobbyEntry

	startedAt  time.Time
	startupErr error
}

// NewGateway wires the connection surface around the session registry.
func NewGateway(ctx context.Context, cfg *config.Config, registry *session.Registry, broadcaster *broadcast.Broadcaster, logger *logging.Logger) (*Gateway, error) {
	if cfg == nil || registry == nil || broadcaster == nil {
		return nil, errors.New("gateway requires config, registry, and broadcaster")
	}
	if logger == nil {
		logger = logging.L()
	}

	var authenticator websocketAuthenticator = allowAllAuthenticator{}
	if cfg.AuthSecret != "" {
		hmacAuth, err := newHMACWebsocketAuthenticator(cfg.AuthSecret)
		if err != nil {
			return nil, err
		}
		authenticator = hmacAuth
	} else {
		logger.Warn("websocket auth disabled: no auth secret configured")
	}

	gateway := &Gateway{
		cfg:           cfg,
		logger:        logger,
		registry:      registry,
		broadcaster:   broadcaster,
		authenticator: authenticator,
		ctx:           ctx,
		clients:       make(map[string]*client),
		lobby:         make(map[string]*lobbyEntry),
		startedAt:     time.Now(),
	}
	gateway.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     gateway.checkOrigin,
	}
	return gateway, nil
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWS authenticates, upgrades, and places the player into a match.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	who, err := g.authenticator.Authenticate(r)
	if err != nil {
		g.logger.Warn("websocket handshake rejected",
			logging.String("remote_addr", r.RemoteAddr),
			logging.Error(err),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	c := newClient(g, conn, uuid.NewString(), who.PlayerID)
	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	g.logger.Info("player connected",
		logging.String("conn_id", c.id),
		logging.String("player_id", who.PlayerID),
	)

	go c.writeLoop()
	go c.readLoop()

	if err := g.place(c, who.MatchID); err != nil {
		g.logger.Warn("player placement failed",
			logging.String("player_id", who.PlayerID),
			logging.Error(err),
		)
		c.enqueue(encodeError(err.Error()))
		c.closeSoon()
	}
}

// place routes a freshly connected player: rejoin a live match, meet a parked
// opponent, or wait in the lobby.
func (g *Gateway) place(c *client, requestedMatch string) error {
	//1.- Rejoin path: a live match that already knows this player.
	if requestedMatch != "" {
		if sess, err := g.registry.Get(requestedMatch); err == nil {
			snapshot := sess.Snapshot()
			known := false
			for _, p := range snapshot.Players {
				if p.ID == c.playerID {
					known = true
					break
				}
			}
			if !known {
				return errNotParticipant
			}
			return g.attach(c, sess, true)
		}
	}

	g.mu.Lock()
	var opponent *lobbyEntry
	if requestedMatch != "" {
		if entry, ok := g.lobby[requestedMatch]; ok && entry.playerID != c.playerID {
			opponent = entry
			delete(g.lobby, requestedMatch)
		} else if ok {
			g.mu.Unlock()
			return errors.New("player already waiting for this match")
		} else {
			g.lobby[requestedMatch] = &lobbyEntry{matchID: requestedMatch, playerID: c.playerID, client: c}
			g.mu.Unlock()
			return nil
		}
	} else {
		//2.- Open matchmaking: pair with whoever waited first.
		if g.waiting != nil && g.waiting.playerID != c.playerID {
			opponent = g.waiting
			g.waiting = nil
		} else {
			g.waiting = &lobbyEntry{playerID: c.playerID, client: c}
			g.mu.Unlock()
			return nil
		}
	}
	g.mu.Unlock()

	matchID := opponent.matchID
	if matchID == "" {
		matchID = uuid.NewString()
	}
	sess, err := g.registry.Create(g.ctx, matchID, opponent.playerID, c.playerID)
	if err != nil {
		//3.- Put the opponent back so a registry hiccup does not strand them.
		g.mu.Lock()
		if opponent.matchID != "" {
			g.lobby[opponent.matchID] = opponent
		} else if g.waiting == nil {
			g.waiting = opponent
		}
		g.mu.Unlock()
		return err
	}
	if err := g.attach(opponent.client, sess, false); err != nil {
		g.logger.Warn("opponent attach failed", logging.Error(err))
	}
	return g.attach(c, sess, false)
}

func (g *Gateway) attach(c *client, sess *session.Session, rejoin bool) error {
	sub, err := g.broadcaster.Subscribe(sess.MatchID(), c.id)
	if err != nil {
		return err
	}
	c.attach(sess, sub)
	if rejoin {
		sess.PlayerReconnected(c.playerID)
	}
	g.logger.Info("player joined match",
		logging.String("player_id", c.playerID),
		logging.String("match_id", sess.MatchID()),
		logging.Bool("rejoin", rejoin),
	)
	return nil
}

// drop removes the connection and starts the disconnect grace window.
func (g *Gateway) drop(c *client) {
	g.mu.Lock()
	delete(g.clients, c.id)
	if g.waiting != nil && g.waiting.client == c {
		g.waiting = nil
	}
	for matchID, entry := range g.lobby {
		if entry.client == c {
			delete(g.lobby, matchID)
		}
	}
	g.mu.Unlock()

	if sess, _ := c.attached(); sess != nil {
		g.broadcaster.Unsubscribe(sess.MatchID(), c.id)
		sess.PlayerDisconnected(c.playerID)
	}
	g.logger.Info("player disconnected",
		logging.String("conn_id", c.id),
		logging.String("player_id", c.playerID),
	)
}

// ConnectionCount reports the live WebSocket connections.
func (g *Gateway) ConnectionCount() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// StartupError reports a fatal initialisation problem for readiness probes.
func (g *Gateway) StartupError() error {
	if g == nil {
		return errors.New("gateway not initialised")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startupErr
}

// Uptime reports how long the gateway has been serving.
func (g *Gateway) Uptime() time.Duration {
	if g == nil {
		return 0
	}
	return time.Since(g.startedAt)
}
