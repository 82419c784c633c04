package main

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/game"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/session"
)

const writeWait = 10 * time.Second

// client is one WebSocket connection. It may exist before a match does: the
// session and subscription are attached once a pairing completes.
type client struct {
	gateway  *Gateway
	conn     *websocket.Conn
	id       string
	playerID string

	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	sess  *session.Session
	sub   *broadcast.Subscription
	ready chan struct{}
}

func newClient(gateway *Gateway, conn *websocket.Conn, id, playerID string) *client {
	return &client{
		gateway:  gateway,
		conn:     conn,
		id:       id,
		playerID: playerID,
		send:     make(chan []byte, gateway.cfg.OutboundQueue),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
}

// attach binds the match session to the connection and unblocks the snapshot pump.
func (c *client) attach(sess *session.Session, sub *broadcast.Subscription) {
	c.mu.Lock()
	c.sess = sess
	c.sub = sub
	close(c.ready)
	c.mu.Unlock()
}

func (c *client) attached() (*session.Session, *broadcast.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.sub
}

// enqueue queues a control frame, dropping it if the client cannot keep up.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
	}
}

func (c *client) closeSoon() {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), deadline)
	_ = c.conn.Close()
}

func (c *client) readLoop() {
	defer func() {
		c.gateway.drop(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	pongWait := c.gateway.cfg.PingInterval + 15*time.Second
	c.conn.SetReadLimit(c.gateway.cfg.MaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.gateway.logger.Debug("websocket read failed",
					logging.String("conn_id", c.id),
					logging.Error(err),
				)
			}
			return
		}

		var envelope inboundEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.enqueue(encodeError("malformed frame"))
			continue
		}
		switch envelope.Type {
		case messageTypeAction:
			c.handleAction(raw)
		case messageTypeTimeSync:
			c.handleTimeSync(raw)
		default:
			c.enqueue(encodeError("unknown message type"))
		}
	}
}

func (c *client) handleAction(raw []byte) {
	sess, _ := c.attached()
	if sess == nil {
		c.enqueue(encodeError("match has not started"))
		return
	}
	payload, err := decodeActionPayload(raw)
	if err != nil {
		c.enqueue(encodeError("malformed action"))
		return
	}
	if payload.MatchID != "" && payload.MatchID != sess.MatchID() {
		c.enqueue(encodeError("action addressed to a different match"))
		return
	}
	action, err := payload.toAction(c.playerID)
	if err != nil {
		c.enqueue(encodeError(err.Error()))
		return
	}
	action.MatchID = sess.MatchID()

	outcome, err := sess.Submit(action)
	if errors.Is(err, session.ErrInboxFull) {
		//1.- Overload sheds load silently: no ack, no error, the client retries
		// against the next snapshot.
		return
	}
	if err != nil {
		c.enqueue(encodeError(err.Error()))
		return
	}
	c.enqueue(encodeAck(action.Tick, outcome))
}

// handleTimeSync answers the client clock probe with the server wall clock and
// the current authoritative tick, so clients can correct their drift.
func (c *client) handleTimeSync(raw []byte) {
	var probe timeSyncPayload
	if err := json.Unmarshal(raw, &probe); err != nil {
		c.enqueue(encodeError("malformed time_sync"))
		return
	}
	var tick uint64
	if sess, _ := c.attached(); sess != nil {
		tick = sess.Snapshot().Tick
	}
	c.enqueue(encodeTimeSync(probe.ClientMs, time.Now().UnixMilli(), tick))
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(c.gateway.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	ready := c.ready
	snapshotStream := c.snapshotStream()
	for {
		select {
		case <-c.done:
			return
		case <-ready:
			//1.- Pairing completed: start pumping authoritative snapshots.
			ready = nil
			snapshotStream = c.snapshotStream()
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case snapshot, ok := <-snapshotStream:
			if !ok {
				//2.- The match ended: deliver the result before closing.
				c.sendResult()
				return
			}
			frame, err := encodeSnapshot(snapshot)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) snapshotStream() <-chan game.Snapshot {
	_, sub := c.attached()
	if sub == nil {
		return nil
	}
	return sub.Snapshots()
}

func (c *client) sendResult() {
	sess, _ := c.attached()
	if sess == nil {
		return
	}
	if res, ok := sess.Result(); ok {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.TextMessage, encodeResult(res))
	}
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
