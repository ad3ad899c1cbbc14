// Package realtime implements the Realtime Bus (C8): websocket
// transport, per-session subscriber sets, inbound message routing
// through the Filter Registry, and the turn-action/turn-end/chat
// relay that drives the dice engines. Grounded on the teacher's
// pkg/websocket/{hub,client}.go, generalized from a single global
// room string to per-session subscriber sets (a session IS a room;
// there is no separate lobby namespace).
package realtime

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Broadcast is a fan-out request for every subscriber of one session.
type Broadcast struct {
	SessionID string
	Type      string
	Payload   any
}

// direct is a fan-out request for one connection only.
type direct struct {
	conn    *Client
	typ     string
	payload any
}

// toPlayer is a fan-out request for every connection a given player
// has open within one session (multi-tab aware).
type toPlayer struct {
	sessionID string
	playerID  string
	typ       string
	payload   any
}

type joinReq struct {
	client    *Client
	sessionID string
}

// Hub owns the live websocket connections, grouped by session. All
// membership mutation happens on Run's single goroutine, matching the
// teacher's single-writer hub loop.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan joinReq
	broadcast  chan Broadcast
	direct     chan direct
	toPlayer   chan toPlayer

	sessions map[string]map[*Client]bool
	logger   *zap.SugaredLogger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinReq),
		broadcast:  make(chan Broadcast, 256),
		direct:     make(chan direct, 256),
		toPlayer:   make(chan toPlayer, 256),
		sessions:   map[string]map[*Client]bool{},
		logger:     logger.Sugar().With("component", "realtime_hub"),
	}
}

// Run drives the hub loop until stop is closed, then drains pending
// broadcasts before returning so a graceful shutdown doesn't drop the
// last frames mid-flight.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case jr := <-h.join:
			h.moveClient(jr.client, jr.sessionID)
		case b := <-h.broadcast:
			h.broadcastToSession(b.SessionID, b.Type, b.Payload)
		case d := <-h.direct:
			h.sendDirect(d.conn, d.typ, d.payload)
		case tp := <-h.toPlayer:
			h.sendToPlayer(tp.sessionID, tp.playerID, tp.typ, tp.payload)
		case <-stop:
			h.drain()
			return
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case b := <-h.broadcast:
			h.broadcastToSession(b.SessionID, b.Type, b.Payload)
		case d := <-h.direct:
			h.sendDirect(d.conn, d.typ, d.payload)
		case tp := <-h.toPlayer:
			h.sendToPlayer(tp.sessionID, tp.playerID, tp.typ, tp.payload)
		default:
			return
		}
	}
}

func (h *Hub) Register(c *Client)               { h.register <- c }
func (h *Hub) Unregister(c *Client)             { h.unregister <- c }
func (h *Hub) Join(c *Client, sessionID string) { h.join <- joinReq{client: c, sessionID: sessionID} }
func (h *Hub) Broadcast(sessionID, typ string, payload any) {
	h.broadcast <- Broadcast{SessionID: sessionID, Type: typ, Payload: payload}
}
func (h *Hub) SendDirect(c *Client, typ string, payload any) {
	h.direct <- direct{conn: c, typ: typ, payload: payload}
}

// SendToPlayer fans a frame out to every connection a given player
// holds open within one session (multi-tab aware), per §4.8's
// direct-delivery path for targetPlayerId envelopes.
func (h *Hub) SendToPlayer(sessionID, playerID, typ string, payload any) {
	h.toPlayer <- toPlayer{sessionID: sessionID, playerID: playerID, typ: typ, payload: payload}
}

func (h *Hub) addClient(c *Client) {
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = map[*Client]bool{}
	}
	h.sessions[c.SessionID][c] = true
}

func (h *Hub) removeClient(c *Client) {
	if c == nil {
		return
	}
	if c.SessionID != "" && h.sessions[c.SessionID] != nil {
		delete(h.sessions[c.SessionID], c)
		if len(h.sessions[c.SessionID]) == 0 {
			delete(h.sessions, c.SessionID)
		}
	}
	c.sendCloseOnce.Do(func() { close(c.Send) })
}

func (h *Hub) moveClient(c *Client, sessionID string) {
	if c == nil {
		return
	}
	if c.SessionID != "" && h.sessions[c.SessionID] != nil {
		delete(h.sessions[c.SessionID], c)
		if len(h.sessions[c.SessionID]) == 0 {
			delete(h.sessions, c.SessionID)
		}
	}
	c.SessionID = sessionID
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = map[*Client]bool{}
	}
	h.sessions[sessionID][c] = true
}

func (h *Hub) broadcastToSession(sessionID, typ string, payload any) {
	clients := h.sessions[sessionID]
	if len(clients) == 0 {
		return
	}
	data, err := encodeFrame(typ, payload)
	if err != nil {
		h.logger.Errorw("broadcast marshal failed", "sessionId", sessionID, "type", typ, "err", err)
		return
	}
	for c := range clients {
		select {
		case c.Send <- data:
		default:
			h.logger.Warnw("dropping slow client", "sessionId", sessionID, "connectionId", c.ConnectionID)
			h.removeClient(c)
		}
	}
}

func (h *Hub) sendToPlayer(sessionID, playerID, typ string, payload any) {
	clients := h.sessions[sessionID]
	if len(clients) == 0 {
		return
	}
	data, err := encodeFrame(typ, payload)
	if err != nil {
		h.logger.Errorw("direct-to-player marshal failed", "sessionId", sessionID, "playerId", playerID, "type", typ, "err", err)
		return
	}
	for c := range clients {
		if c.PlayerID != playerID {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.logger.Warnw("dropping slow client", "sessionId", sessionID, "connectionId", c.ConnectionID)
			h.removeClient(c)
		}
	}
}

func (h *Hub) sendDirect(c *Client, typ string, payload any) {
	if c == nil {
		return
	}
	data, err := encodeFrame(typ, payload)
	if err != nil {
		h.logger.Errorw("direct marshal failed", "connectionId", c.ConnectionID, "type", typ, "err", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		h.logger.Warnw("direct send drop: slow client", "connectionId", c.ConnectionID, "type", typ)
	}
}

func encodeFrame(typ string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":      typ,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
