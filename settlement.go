package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/settle"
)

const messageTypeSettlement = "settlement"

// settlementFrame wraps one sequenced match result for the settlement consumer.
type settlementFrame struct {
	Type     string          `json:"type"`
	Envelope settle.Envelope `json:"envelope"`
}

// settlementAck acknowledges the next pending sequence.
type settlementAck struct {
	Sequence uint64 `json:"sequence"`
}

// settlementGateway exposes the settlement stream over a WebSocket endpoint.
// A consumer identifies itself with a stable consumer_id and acknowledges each
// envelope in order; a reconnect replays everything left unacknowledged, so
// delivery stays at-least-once across drops.
type settlementGateway struct {
	cfg      *config.Config
	logger   *logging.Logger
	stream   *settle.Stream
	upgrader websocket.Upgrader
	ctx      context.Context
}

func newSettlementGateway(ctx context.Context, cfg *config.Config, stream *settle.Stream, logger *logging.Logger) *settlementGateway {
	if logger == nil {
		logger = logging.L()
	}
	return &settlementGateway{
		cfg:    cfg,
		logger: logger,
		stream: stream,
		ctx:    ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// authorised gates the endpoint on the admin token when one is configured.
func (g *settlementGateway) authorised(r *http.Request) bool {
	if g.cfg.AdminToken == "" {
		return true
	}
	token := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.AdminToken)) == 1
}

// ServeWS attaches one settlement consumer to the result stream.
func (g *settlementGateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !g.authorised(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	consumerID := strings.TrimSpace(r.URL.Query().Get("consumer_id"))
	if consumerID == "" {
		http.Error(w, "consumer_id query parameter required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(g.ctx)
	sub, err := g.stream.Subscribe(ctx, consumerID, 16)
	if err != nil {
		cancel()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		cancel()
		g.logger.Warn("settlement upgrade failed", logging.Error(err))
		return
	}

	g.logger.Info("settlement consumer connected", logging.String("consumer_id", consumerID))
	go g.readAcks(conn, sub, cancel)
	g.pump(ctx, conn, sub)

	cancel()
	sub.Close()
	_ = conn.Close()
	g.logger.Info("settlement consumer detached", logging.String("consumer_id", consumerID))
}

// readAcks consumes in-order acknowledgements until the connection drops.
func (g *settlementGateway) readAcks(conn *websocket.Conn, sub *settle.Subscription, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ack settlementAck
		if err := json.Unmarshal(raw, &ack); err != nil {
			continue
		}
		if err := sub.Ack(ack.Sequence); err != nil {
			g.logger.Warn("settlement ack rejected",
				logging.Uint64("sequence", ack.Sequence),
				logging.Error(err),
			)
		}
	}
}

// pump writes every sequenced envelope until the consumer goes away.
func (g *settlementGateway) pump(ctx context.Context, conn *websocket.Conn, sub *settle.Subscription) {
	interval := g.cfg.PingInterval
	if interval <= 0 {
		interval = config.DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-sub.Results():
			if !ok {
				return
			}
			frame, err := json.Marshal(settlementFrame{Type: messageTypeSettlement, Envelope: envelope})
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
